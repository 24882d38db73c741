package cloudflare

import (
	"strings"
	"time"
)

// Time decodes the timestamp formats the Cloudflare API actually emits.
// Endpoints disagree on fractional seconds: some send none, some send
// milliseconds, some send microseconds. Decoding tries the permissive
// RFC 3339 parser first, then retries with the fractional part normalized
// to exactly three digits, then falls back to the plain form.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler. Null and empty strings decode
// to the zero Time.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := parseAPITime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler, emitting RFC 3339 with
// millisecond precision.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format("2006-01-02T15:04:05.000Z07:00") + `"`), nil
}

func parseAPITime(s string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return parsed, nil
	}
	if normalized := normalizeFraction(s); normalized != s {
		if parsed, err := time.Parse(time.RFC3339Nano, normalized); err == nil {
			return parsed, nil
		}
	}
	return time.Parse(time.RFC3339, s)
}

// normalizeFraction rewrites the fractional-seconds part of an RFC 3339
// timestamp to exactly three digits, padding or truncating as needed.
func normalizeFraction(s string) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	end := dot + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	frac := s[dot+1 : end]
	switch {
	case len(frac) > 3:
		frac = frac[:3]
	case len(frac) < 3:
		frac = frac + strings.Repeat("0", 3-len(frac))
	}
	return s[:dot+1] + frac + s[end:]
}
