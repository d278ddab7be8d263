// Package textutil holds small string helpers shared across components.
package textutil

// Truncate caps s at n bytes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
