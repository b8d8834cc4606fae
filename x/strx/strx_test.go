package strx

import "testing"

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "b", "c"); got != "b" {
		t.Fatalf("Coalesce = %q, want b", got)
	}
	if got := Coalesce("", ""); got != "" {
		t.Fatalf("Coalesce = %q, want empty", got)
	}
	if got := Coalesce(); got != "" {
		t.Fatalf("Coalesce() = %q", got)
	}
}
