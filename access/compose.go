package access

import "github.com/nlevitt/outbackcdx/cdx"

// ComposeFilters chains filters so a capture is visible iff every
// non-nil filter accepts it, short-circuiting at the first rejection.
// Nil filters are skipped, and a capture with zero filters is always
// visible.
func ComposeFilters(filters ...cdx.Filter) cdx.Filter {
	return func(c cdx.Capture) bool {
		for _, f := range filters {
			if f == nil {
				continue
			}
			if !f(c) {
				return false
			}
		}
		return true
	}
}
