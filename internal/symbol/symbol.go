// Package symbol normalizes exchange symbol strings the way the cache
// lookups require: uppercase, separators stripped, USDT re-appended if
// missing. Adapted from the teacher's market.Normalize (market/data.go),
// generalized from the teacher's stock-ticker uppercasing to the futures
// convention spec.md §4.2 requires.
package symbol

import "strings"

var stripper = strings.NewReplacer("/", "", ":", "", "_", "", " ", "")

// Normalize uppercases, strips "/ : _ space", and re-appends "USDT" if the
// resulting symbol has no recognized quote-asset suffix. Idempotent:
// Normalize(Normalize(s)) == Normalize(s) for every input (spec invariant).
func Normalize(raw string) string {
	s := stripper.Replace(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return s
	}
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(s, quote) {
			return s
		}
	}
	return s + "USDT"
}
