package envutil

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("FG_TEST_INT", "42")
	if got := Int("FG_TEST_INT", 1); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("FG_TEST_INT", "nope")
	if got := Int("FG_TEST_INT", 1); got != 1 {
		t.Fatalf("got %d", got)
	}
}

func TestDurations(t *testing.T) {
	t.Setenv("FG_TEST_MS", "250")
	if got := Millis("FG_TEST_MS", time.Second); got != 250*time.Millisecond {
		t.Fatalf("got %v", got)
	}
	if got := Seconds("FG_TEST_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("got %v", got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("FG_TEST_BOOL", "off")
	if Bool("FG_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("FG_TEST_LIST", " a, ,b ")
	got := List("FG_TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %#v", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("FG_TEST_FLOAT", "0.25")
	if got := Float("FG_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("got %v", got)
	}
	t.Setenv("FG_TEST_FLOAT", "x")
	if got := Float("FG_TEST_FLOAT", 1); got != 1 {
		t.Fatalf("got %v", got)
	}
}
