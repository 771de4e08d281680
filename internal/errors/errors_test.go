package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppErrorFormat(t *testing.T) {
	err := New(ErrValidation, "signer name is required")
	want := "[VALIDATION_ERROR] signer name is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(ErrStorage, "enqueue failed", stderrors.New("disk full"))
	want = "[STORAGE_ERROR] enqueue failed: disk full"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestIsMatchesThroughChain(t *testing.T) {
	inner := Wrap(ErrNetworkUnavailable, "request failed", stderrors.New("dial tcp: refused"))
	outer := fmt.Errorf("submit acknowledgment: %w", inner)

	if !Is(outer, ErrNetworkUnavailable) {
		t.Error("expected Is to match wrapped code")
	}
	if Is(outer, ErrValidation) {
		t.Error("did not expect a validation code")
	}
}

func TestCodeFallback(t *testing.T) {
	if got := Code(stderrors.New("plain")); got != ErrInternal {
		t.Errorf("Code(plain) = %s, want %s", got, ErrInternal)
	}
	if got := Code(New(ErrAuthExpired, "token expired")); got != ErrAuthExpired {
		t.Errorf("Code = %s, want %s", got, ErrAuthExpired)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want bool
	}{
		{ErrNetworkUnavailable, true},
		{ErrServer, true},
		{ErrValidation, false},
		{ErrAuthExpired, false},
		{ErrStorage, false},
	}

	for _, tc := range cases {
		if got := Retryable(New(tc.code, "x")); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(ErrDatabase, "query failed", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}
