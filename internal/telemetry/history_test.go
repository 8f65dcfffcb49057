package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/database"
	"github.com/nerrad567/drone-gateway/migrations"
)

// testHistory opens an in-memory database with the gateway schema applied.
func testHistory(t *testing.T) *SQLiteHistory {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteHistory(db.DB)
}

func motorEvent(id string, speed int, at time.Time) device.Event {
	return device.Event{
		ID:       id,
		Ref:      device.Ref{Kind: device.KindMotor, ID: 1},
		Op:       device.OpWrite,
		Value:    speed,
		Status:   device.MotorStatus{Speed: speed, TurnedOn: speed != 0},
		Duration: 750 * time.Millisecond,
		At:       at,
	}
}

func TestSQLiteHistory_RecordAndList(t *testing.T) {
	repo := testHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, speed := range []int{100, 500, 0} {
		ev := motorEvent("op-"+string(rune('a'+i)), speed, base.Add(time.Duration(i)*time.Second))
		if err := repo.Record(ctx, ev); err != nil {
			t.Fatalf("Record(%d) error = %v", speed, err)
		}
	}
	light := device.Event{
		ID:     "op-light",
		Ref:    device.Ref{Kind: device.KindLight, ID: 1},
		Op:     device.OpWrite,
		Value:  10,
		Status: device.LightStatus{ID: 1, Description: "Blue LED", Level: 10},
		At:     base,
	}
	if err := repo.Record(ctx, light); err != nil {
		t.Fatalf("Record(light) error = %v", err)
	}

	entries, err := repo.List(ctx, device.Ref{Kind: device.KindMotor, ID: 1}, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}

	newest := entries[0]
	if newest.ID != "op-c" || newest.Value != 0 || newest.Operation != device.OpWrite {
		t.Errorf("newest = %+v", newest)
	}
	if newest.State["turned_on"] != false || newest.State["speed"] != float64(0) {
		t.Errorf("newest state = %v", newest.State)
	}
	if newest.DurationMS != 750 {
		t.Errorf("DurationMS = %d, want 750", newest.DurationMS)
	}
	if !newest.CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("CreatedAt = %v", newest.CreatedAt)
	}
	if entries[2].ID != "op-a" {
		t.Errorf("oldest = %s, want op-a", entries[2].ID)
	}

	limited, err := repo.List(ctx, device.Ref{Kind: device.KindMotor, ID: 1}, 2)
	if err != nil {
		t.Fatalf("List(limit 2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit 2) returned %d entries", len(limited))
	}

	none, err := repo.List(ctx, device.Ref{Kind: device.KindLight, ID: 2}, 10)
	if err != nil {
		t.Fatalf("List(light/2) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List(light/2) = %+v, want empty", none)
	}
}

func TestSQLiteHistory_SubSecondOrdering(t *testing.T) {
	repo := testHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// 09:00:00.5 must sort after 09:00:00 even though it is a longer string
	// in a variable-width layout.
	repo.Record(ctx, motorEvent("later", 2, base.Add(500*time.Millisecond))) //nolint:errcheck // asserted via List
	repo.Record(ctx, motorEvent("earlier", 1, base))                         //nolint:errcheck // asserted via List

	entries, err := repo.List(ctx, device.Ref{Kind: device.KindMotor, ID: 1}, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "later" {
		t.Errorf("List() = %+v, want later first", entries)
	}
}

func TestSQLiteHistory_RecordRequiresID(t *testing.T) {
	repo := testHistory(t)
	if err := repo.Record(context.Background(), motorEvent("", 1, time.Now())); err == nil {
		t.Error("Record() with empty id succeeded")
	}
}

func TestSQLiteHistory_Prune(t *testing.T) {
	repo := testHistory(t)
	ctx := context.Background()
	now := time.Now().UTC()

	repo.Record(ctx, motorEvent("old", 1, now.Add(-48*time.Hour))) //nolint:errcheck // asserted via Prune
	repo.Record(ctx, motorEvent("new", 2, now))                    //nolint:errcheck // asserted via Prune

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d, want 1", n)
	}

	entries, _ := repo.List(ctx, device.Ref{Kind: device.KindMotor, ID: 1}, 10)
	if len(entries) != 1 || entries[0].ID != "new" {
		t.Errorf("remaining = %+v", entries)
	}

	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestRunRetention_StopsOnCancel(t *testing.T) {
	repo := testHistory(t)
	ctx, cancel := context.WithCancel(context.Background())

	repo.Record(ctx, motorEvent("old", 1, time.Now().Add(-time.Hour))) //nolint:errcheck // asserted below

	done := make(chan struct{})
	go func() {
		RunRetention(ctx, repo, time.Minute, time.Hour, nil)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entries, _ := repo.List(context.Background(), device.Ref{Kind: device.KindMotor, ID: 1}, 10)
		if len(entries) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not return after cancel")
	}

	entries, _ := repo.List(context.Background(), device.Ref{Kind: device.KindMotor, ID: 1}, 10)
	if len(entries) != 0 {
		t.Errorf("initial prune left %d entries", len(entries))
	}
}
