package auth

import (
	"testing"
	"time"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func TestGenerateAccessToken(t *testing.T) {
	permissions := DocumentPermissions{
		CanRead:  []string{"doc-1"},
		CanWrite: []string{"doc-1"},
	}

	token, err := GenerateAccessToken("user-123", "user@example.com", permissions, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	payload, err := DecodeTokenWithoutVerification(token)
	if err != nil {
		t.Fatalf("DecodeTokenWithoutVerification() error = %v", err)
	}
	if payload.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", payload.UserID, "user-123")
	}
	if payload.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", payload.Email, "user@example.com")
	}
	if len(payload.Permissions.CanRead) != 1 || payload.Permissions.CanRead[0] != "doc-1" {
		t.Errorf("Permissions.CanRead = %v, want [doc-1]", payload.Permissions.CanRead)
	}
}

func TestGenerateAccessToken_RejectsShortSecret(t *testing.T) {
	_, err := GenerateAccessToken("user-123", "", DocumentPermissions{}, "short", time.Hour)
	if err != ErrShortSecret {
		t.Errorf("GenerateAccessToken() error = %v, want ErrShortSecret", err)
	}
}

func TestDecodeTokenWithoutVerification_Garbage(t *testing.T) {
	_, err := DecodeTokenWithoutVerification("not.a.token")
	if err == nil {
		t.Error("DecodeTokenWithoutVerification() expected error for garbage input, got nil")
	}
}

func TestUserLabel(t *testing.T) {
	token, err := GenerateAccessToken("alice", "alice@example.com", DocumentPermissions{}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"valid token", token, "alice"},
		{"empty token", "", ""},
		{"garbage token", "garbage", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserLabel(tt.token); got != tt.want {
				t.Errorf("UserLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
