package testutil

import "testing"

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(keyword+" "+desc, fn)
}

// Given opens a scenario subtest describing the starting data, e.g. the
// records or name store a report is built from.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", desc, fn)
}

// When nests a variation of the enclosing scenario.
func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", desc, fn)
}

// Then holds one expectation; it reports whether the subtest passed so a
// scenario can stop checking once an earlier expectation failed.
func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", desc, fn)
}
