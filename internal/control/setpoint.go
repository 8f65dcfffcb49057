package control

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// parseSetpoint extracts field from a JSON object body as an int.
//
// Accepted values are JSON integers, JSON numbers with a fractional part
// (truncated toward zero) and strings holding a base-10 integer. Magnitudes
// beyond the int range saturate so that the device reports a range error
// rather than the value being refused as malformed.
func parseSetpoint(body []byte, field string) (int, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return 0, errInvalidJSON
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, errInvalidJSON
	}

	raw, ok := doc[field]
	if !ok {
		return 0, missingField(field)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, notInteger(field)
	}

	switch x := v.(type) {
	case nil:
		return 0, missingField(field)
	case json.Number:
		return numberToInt(x, field)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return saturate(strings.HasPrefix(strings.TrimSpace(x), "-")), nil
			}
			return 0, notInteger(field)
		}
		return clampInt64(n), nil
	default:
		return 0, notInteger(field)
	}
}

func numberToInt(n json.Number, field string) (int, error) {
	if i, err := n.Int64(); err == nil {
		return clampInt64(i), nil
	}
	f, err := n.Float64()
	if err != nil && !isRangeErr(err) {
		return 0, notInteger(field)
	}
	if math.IsNaN(f) {
		return 0, notInteger(field)
	}
	f = math.Trunc(f)
	switch {
	case f >= math.MaxInt:
		return math.MaxInt, nil
	case f <= math.MinInt:
		return math.MinInt, nil
	}
	return int(f), nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func saturate(negative bool) int {
	if negative {
		return math.MinInt
	}
	return math.MaxInt
}

func clampInt64(i int64) int {
	if i > math.MaxInt {
		return math.MaxInt
	}
	if i < math.MinInt {
		return math.MinInt
	}
	return int(i)
}
