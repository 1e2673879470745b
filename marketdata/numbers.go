package marketdata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// asNumber reports whether a raw JSON value is a finite number. Booleans,
// nulls, strings, infinities and NaN are all rejected; upstream sparklines
// occasionally carry any of them.
func asNumber(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "true" || s == "false" {
		return 0, false
	}
	if s[0] == '"' {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
