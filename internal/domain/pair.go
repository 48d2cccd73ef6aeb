package domain

import "strings"

// CanonicalPair normalizes an unordered user pair into the storage order
// required by Match (UserAID < UserBID, lexicographic byte order). Both
// sessions of a racing pair compute the same key regardless of who
// initiates.
func CanonicalPair(x, y string) (a, b string) {
	if strings.Compare(x, y) <= 0 {
		return x, y
	}
	return y, x
}
