package auth

import (
	"strings"
	"testing"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

func newTestService(ttlSeconds int) *TokenService {
	return NewTokenService(&config.AuthConfig{
		Secret:   "test-secret",
		TokenTTL: ttlSeconds,
	})
}

func TestMintAndVerify(t *testing.T) {
	svc := newTestService(3600)
	userID := uuid.New()

	token, err := svc.Mint(userID, models.RoleCourier)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if identity.UserID != userID {
		t.Fatalf("user id = %s, want %s", identity.UserID, userID)
	}
	if identity.Role != models.RoleCourier {
		t.Fatalf("role = %s, want COURIER", identity.Role)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestService(-1) // уже истекший

	token, err := svc.Mint(uuid.New(), models.RoleCustomer)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if _, err := svc.Verify(token); err == nil {
		t.Fatal("expected error for expired token")
	} else if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := newTestService(3600)
	verifier := NewTokenService(&config.AuthConfig{Secret: "other-secret", TokenTTL: 3600})

	token, err := issuer.Mint(uuid.New(), models.RoleAdmin)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected signature error for token signed with another secret")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(3600)

	for _, token := range []string{"", "not-base64!!!", "YWJjZGVm"} {
		if _, err := svc.Verify(token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}
