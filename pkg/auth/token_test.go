package auth

import (
	"testing"
	"time"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "dstars",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{AccountID: 7, Email: "staff@dstars.fit"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.AccountID != 7 {
		t.Fatalf("expected account_id 7, got %d", claims.AccountID)
	}
	if claims.Email != "staff@dstars.fit" {
		t.Fatalf("unexpected email %s", claims.Email)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now().UTC()

	if _, err := MintAccessToken(config.JWTConfig{Issuer: "dstars", ExpirationMinutes: 30}, now, AccessTokenPayload{AccountID: 1}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
	if _, err := MintAccessToken(testJWTConfig(), now, AccessTokenPayload{}); err == nil {
		t.Fatalf("expected error for missing account id")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{AccountID: 1})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestParseAccessTokenAllowExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	issued := time.Now().UTC().Add(-time.Hour)

	token, err := MintAccessToken(cfg, issued, AccessTokenPayload{AccountID: 3, JTI: "known-jti"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expiry failure")
	}

	claims, err := ParseAccessTokenAllowExpired(cfg, token)
	if err != nil {
		t.Fatalf("parse expired token: %v", err)
	}
	if claims.ID != "known-jti" {
		t.Fatalf("unexpected jti %s", claims.ID)
	}
}
