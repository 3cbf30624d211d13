// Package str provides small integer-to-string helpers for hot paths
// that would otherwise pull in fmt's formatting machinery.
package str

import "strconv"

// Itod formats a signed integer in base 10.
func Itod(i int64) string {
	return strconv.FormatInt(i, 10)
}

// Utod formats an unsigned integer in base 10.
func Utod(u uint64) string {
	return strconv.FormatUint(u, 10)
}
