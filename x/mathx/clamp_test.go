package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Fatalf("Clamp(5,0,3) = %d", got)
	}
	if got := Clamp(-1, 0, 3); got != 0 {
		t.Fatalf("Clamp(-1,0,3) = %d", got)
	}
	if got := Clamp(2, 3, 0); got != 2 {
		t.Fatalf("swapped bounds: Clamp(2,3,0) = %d", got)
	}
	if got := Clamp(10*time.Second, time.Millisecond, time.Second); got != time.Second {
		t.Fatalf("duration clamp = %v", got)
	}
}

func TestOrDefault(t *testing.T) {
	if got := OrDefault(0, 256); got != 256 {
		t.Fatalf("OrDefault(0,256) = %d", got)
	}
	if got := OrDefault(8, 256); got != 8 {
		t.Fatalf("OrDefault(8,256) = %d", got)
	}
}
