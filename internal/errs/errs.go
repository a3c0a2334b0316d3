// Package errs defines the sentinel error values shared by every codec
// in this module (efcore, upef, mlef) and re-exported by the root ef
// package, following the single-sentinel-per-failure-kind idiom.
package errs

import "errors"

var (
	// IndexOutOfRange is returned by Select when k is not in [0, n).
	IndexOutOfRange = errors.New("ef: index out of range")

	// OutOfUniverse is returned by NextGEQ/NextLEQ when no stored value
	// satisfies the query (x beyond the max, or below the min).
	OutOfUniverse = errors.New("ef: value out of universe")

	// NotPresent is returned by rank-like lookups (UPEF.Rank) when the
	// queried value is not present in the structure.
	NotPresent = errors.New("ef: value not present")

	// InvalidInput is returned on construction from an empty or
	// non-monotone sequence, or with a zero chunk size/depth.
	InvalidInput = errors.New("ef: invalid input")

	// MalformedBlob is returned when deserialization detects
	// truncation, a wrong kind tag, or inconsistent counts.
	MalformedBlob = errors.New("ef: malformed blob")
)
