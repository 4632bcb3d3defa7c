package util

import "strings"

// NaturalCompare orders strings so that runs of digits compare by value:
// "2_a.png" sorts before "10_b.png". Letters compare case-insensitively
// and a digit run sorts before a non-digit run at the same position.
func NaturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := chunk(a), chunk(b)
		a, b = a[len(ca):], b[len(cb):]

		da, db := isDigit(ca[0]), isDigit(cb[0])
		switch {
		case da && !db:
			return -1
		case !da && db:
			return 1
		case da && db:
			if c := compareDigits(ca, cb); c != 0 {
				return c
			}
		default:
			if c := strings.Compare(strings.ToLower(ca), strings.ToLower(cb)); c != 0 {
				return c
			}
		}
	}
	// The string with chunks left over sorts last.
	return len(a) - len(b)
}

// NaturalSortLess reports whether s1 sorts before s2 in natural order.
func NaturalSortLess(s1, s2 string) bool {
	return NaturalCompare(s1, s2) < 0
}

// chunk returns the leading run of digits or non-digits of a non-empty s.
func chunk(s string) string {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i]
}

// compareDigits compares digit runs by value without parsing, so runs
// longer than an int still order correctly.
func compareDigits(a, b string) int {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
