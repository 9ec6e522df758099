package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/agromarket-backend/pkg/config"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "agromarket",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UID: "firebase-uid-1", Role: enums.BuyerRoleVendor})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UID != "firebase-uid-1" {
		t.Fatalf("expected uid preserved, got %s", claims.UID)
	}
	if claims.Role != enums.BuyerRoleVendor {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestMintRejectsInvalidPayload(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UID: "", Role: enums.BuyerRoleClient}); err == nil {
		t.Fatal("expected missing uid to fail")
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UID: "u", Role: "admin"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
	cfg.ExpirationMinutes = 0
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UID: "u", Role: enums.BuyerRoleClient}); err == nil {
		t.Fatal("expected non-positive ttl to fail")
	}
}

func TestParseAccessTokenRejectsExpiredAndWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UID: "u", Role: enums.BuyerRoleClient})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}

	fresh, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UID: "u", Role: enums.BuyerRoleClient})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, fresh); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
	other = cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, fresh); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}
