package pipelineerr

import (
	"errors"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(KindDomainViolation, "high below max(open,close,low)")
	if !errors.Is(err, KindDomainViolation) {
		t.Fatal("expected errors.Is to match the error's kind")
	}
	if errors.Is(err, KindStorage) {
		t.Fatal("expected errors.Is to reject a different kind")
	}
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransientNetwork, "vendor request failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if !errors.Is(err, KindTransientNetwork) {
		t.Fatal("expected errors.Is to match the wrapping kind")
	}
}

func TestKindOf(t *testing.T) {
	err := New(KindConcurrencyConflict, "aggregate version mismatch")
	kind, ok := KindOf(err)
	if !ok || kind != KindConcurrencyConflict {
		t.Fatalf("expected KindConcurrencyConflict, got %v, ok=%v", kind, ok)
	}

	_, ok = KindOf(errors.New("plain error"))
	if ok {
		t.Fatal("expected ok=false for an unclassified error")
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{KindRateLimitExceeded, KindTransientNetwork}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}
	nonRetryable := []Kind{KindAuthentication, KindParse, KindDomainViolation, KindStorage, KindConcurrencyConflict, KindFatal, KindConfiguration}
	for _, k := range nonRetryable {
		if k.Retryable() {
			t.Errorf("expected %s to be non-retryable", k)
		}
	}
}

func TestMask_RedactsCredentialLikeSubstrings(t *testing.T) {
	msg := `request failed: api_key=sk-abc123 rejected`
	masked := Mask(msg)
	if masked == msg {
		t.Fatal("expected Mask to alter a message containing api_key=...")
	}
	if want := "api_key=***"; !contains(masked, want) {
		t.Fatalf("expected masked message to contain %q, got %q", want, masked)
	}
	if contains(masked, "sk-abc123") {
		t.Fatalf("expected masked message to not contain the raw secret, got %q", masked)
	}
}

func TestMask_LeavesOrdinaryTextAlone(t *testing.T) {
	msg := "vendor returned status 503 after 3 attempts"
	if got := Mask(msg); got != msg {
		t.Fatalf("expected ordinary message to be unchanged, got %q", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
