package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestRejectionIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("create: %w", Reject(RejectDuplicate, "already pending"))
	if !errors.Is(err, &Rejection{Code: RejectDuplicate}) {
		t.Fatalf("errors.Is(%v, duplicate) = false, want true", err)
	}
	if errors.Is(err, &Rejection{Code: RejectBot}) {
		t.Fatalf("errors.Is(%v, bot) = true, want false", err)
	}
	r, ok := AsRejection(err)
	if !ok || r.Message != "already pending" {
		t.Fatalf("AsRejection() = %v, %v", r, ok)
	}
}

func TestPlatformFailure(t *testing.T) {
	cause := errors.New("boom")
	err := PlatformFailure("relocate", cause)
	if !errors.Is(err, ErrPlatform) || !errors.Is(err, cause) {
		t.Fatalf("PlatformFailure() = %v, want both ErrPlatform and cause", err)
	}
	if PlatformFailure("noop", nil) != nil {
		t.Fatal("PlatformFailure(nil) should be nil")
	}
	if _, ok := AsRejection(err); ok {
		t.Fatal("platform failure must not be a rejection")
	}
}
