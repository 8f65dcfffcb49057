// Package database provides SQLite connectivity for the gateway's operation
// history.
//
// The history is an audit trail only: device state is never restored from
// it, and the gateway runs with the database disabled.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are forward-only files named YYYYMMDD_HHMMSS_description.up.sql.
package database
