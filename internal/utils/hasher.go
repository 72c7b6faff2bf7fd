package utils

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hash returns the decimal xxhash64 of input
func Hash(input string) string {
	return strconv.FormatUint(xxhash.Sum64String(input), 10)
}

// FoldHash mixes value into an accumulated hash. Folding the same values in
// the same order always yields the same result.
func FoldHash(acc, value string) string {
	return Hash(acc + value)
}
