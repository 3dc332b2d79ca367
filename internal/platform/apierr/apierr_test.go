package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAsFindsWrappedError(t *testing.T) {
	err := fmt.Errorf("upload: %w", TooLarge(1024))
	ae, ok := As(err)
	if !ok {
		t.Fatalf("As(%v) found no API error", err)
	}
	if ae.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", ae.Status)
	}
	if ae.Code != "too_large" {
		t.Fatalf("code = %q", ae.Code)
	}
	if got := ae.Error(); got != "request body exceeds 1024 bytes" {
		t.Fatalf("message = %q", got)
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Fatalf("plain error matched")
	}
}

func TestErrorText(t *testing.T) {
	if got := New(http.StatusConflict, "conflict", nil).Error(); got != "conflict" {
		t.Fatalf("got %q", got)
	}
	if got := New(http.StatusBadGateway, "", nil).Error(); got != "Bad Gateway" {
		t.Fatalf("got %q", got)
	}
}
