package security

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	t.Parallel()

	token, errGen := GenerateToken("test-secret", 42, "alice", "alice@example.com", time.Hour)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}

	claims, errParse := ParseToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", claims.UserID)
	}
	if claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	t.Parallel()

	token, errGen := GenerateToken("test-secret", 1, "alice", "", time.Hour)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}

	if _, errParse := ParseToken("other-secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenExpired(t *testing.T) {
	t.Parallel()

	token, errGen := GenerateToken("test-secret", 1, "alice", "", -time.Minute)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}

	if _, errParse := ParseToken("test-secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	t.Parallel()

	if _, errParse := ParseToken("test-secret", "not-a-token"); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, errHash := HashPassword("hunter2-but-longer")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if hash == "hunter2-but-longer" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "hunter2-but-longer") {
		t.Fatalf("correct password should verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("wrong password should not verify")
	}
}
