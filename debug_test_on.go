//go:build lanesdebug

package lanes

// Building with -tags lanesdebug flips debugAssertNResults from a no-op
// into a real assertion, for tests that want to exercise DESIGN.md Open
// Question 3's invariant directly rather than just trusting it holds.
func init() {
	lanesDebug = true
}
