package version

import "testing"

func TestStringAndUserAgent(t *testing.T) {
	if got := String(); got != "dev (none, unknown)" {
		t.Fatalf("String()=%q, want %q", got, "dev (none, unknown)")
	}
	if got := UserAgent(); got != "debugkit/dev" {
		t.Fatalf("UserAgent()=%q, want %q", got, "debugkit/dev")
	}
}
