package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	s, err := NewTokenService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return s
}

func TestMintVerifyRoundTrip(t *testing.T) {
	s := newTestService(t)

	token := s.Mint(42)
	userID, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := newTestService(t)
	token := s.Mint(42)

	// Swap the embedded user id; the signature no longer matches.
	tampered := strings.Replace(token, ".42.", ".43.", 1)
	if _, err := s.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := newTestService(t)

	for _, token := range []string{"", "garbage", "v1.42", "v2.42.999.sig", "v1.x.y.z"} {
		if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := newTestService(t)
	token := s.Mint(42)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	s := newTestService(t)
	other, err := NewTokenService("other-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	if _, err := s.Verify(other.Mint(42)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign-secret token err = %v, want ErrInvalidToken", err)
	}
}

func TestFromBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"Bearer   padded  ", "padded"},
		{"", ""},
		{"Basic dXNlcg==", ""},
		{"bearer abc", ""},
	}

	for _, tt := range tests {
		if got := FromBearer(tt.header); got != tt.want {
			t.Errorf("FromBearer(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
