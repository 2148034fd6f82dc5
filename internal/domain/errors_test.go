package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not found", NotFound("session %d", 1), KindNotFound},
		{"wrapped pool exceeded", fmt.Errorf("submit: %w", PoolExceeded("too much")), KindPoolExceeded},
		{"wrapped cause", Wrap(KindConflict, "commit", errors.New("serialization failure")), KindConflict},
		{"plain error", errors.New("connection reset"), KindStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := fmt.Errorf("ledger: %w", PreconditionFailed("no approved buy-in"))
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Error("errors.Is(err, ErrPreconditionFailed) = false, want true")
	}
	if errors.Is(err, ErrPoolExceeded) {
		t.Error("errors.Is(err, ErrPoolExceeded) = true, want false")
	}
	if got := err.Error(); got != "ledger: no approved buy-in" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindStoreUnavailable, "begin tx", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
	if got := err.Error(); got != "begin tx: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}
