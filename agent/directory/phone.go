package directory

import "strings"

// DefaultMatchDigits covers a North American number without country code.
const DefaultMatchDigits = 10

// NormalizePhone keeps ASCII digits only.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// SamePhone compares two numbers after normalization. When both carry at
// least n digits only the last n are compared, so "+1 555 123 4567" and
// "(555) 123-4567" match. Shorter numbers must match exactly. A number with
// no digits never matches.
func SamePhone(a, b string, n int) bool {
	if n <= 0 {
		n = DefaultMatchDigits
	}
	da, db := NormalizePhone(a), NormalizePhone(b)
	if da == "" || db == "" {
		return false
	}
	if len(da) >= n && len(db) >= n {
		return da[len(da)-n:] == db[len(db)-n:]
	}
	return da == db
}

// MatchKey is the comparison key SamePhone uses for a single number.
func MatchKey(phone string, n int) string {
	if n <= 0 {
		n = DefaultMatchDigits
	}
	d := NormalizePhone(phone)
	if len(d) > n {
		return d[len(d)-n:]
	}
	return d
}
