package models

import (
	"strings"
	"testing"
)

func TestCreateUser(t *testing.T) {
	user, err := CreateUser("Jane Doe", "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("CreateUser() = %v", err)
	}
	if user.Role != ROLE_USER || user.Status != STATUS_ACTIVE {
		t.Fatalf("new user role/status = %s/%s, want user/active", user.Role, user.Status)
	}
	if user.Password == "secret123" {
		t.Fatal("password stored in plain text")
	}
	if !user.CheckPassword("secret123") {
		t.Fatal("stored hash does not verify the original password")
	}
	if user.CheckPassword("wrong") {
		t.Fatal("wrong password verified")
	}
}

func TestCreateUser_Invalid(t *testing.T) {
	if _, err := CreateUser("Jane Doe", "not-an-email", "secret123"); err == nil {
		t.Fatal("expected a validation error for a bad email")
	}
	if _, err := CreateUser("Jane Doe", "jane@example.com", "short"); err == nil {
		t.Fatal("expected a validation error for a short password")
	}
}

func TestIssueAPIKey_RoundTrip(t *testing.T) {
	user := &User{Name: "Jane Doe", Email: "jane@example.com"}

	rawKey, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey() = %v", err)
	}
	if !strings.HasPrefix(rawKey, "fs_") {
		t.Fatalf("raw key %q missing the fs_ prefix", rawKey)
	}
	// The middleware hashes the presented key and looks it up; the stored hash
	// must match exactly what HashAPIKey produces for the raw key.
	if user.APIKeyHash != HashAPIKey(rawKey) {
		t.Fatal("stored hash does not match HashAPIKey(rawKey)")
	}
	if user.APIKeyHash == rawKey {
		t.Fatal("raw key stored instead of its hash")
	}
	if user.APIKeyPrefix != rawKey[:16] {
		t.Fatalf("stored prefix %q does not match the key", user.APIKeyPrefix)
	}
	if user.APIKeyCreatedAt == nil {
		t.Fatal("issue timestamp not set")
	}
	if user.APIKeyLastUsedAt != nil {
		t.Fatal("last-used timestamp should reset on issue")
	}

	// Keys presented with surrounding whitespace still hash to the same value.
	if HashAPIKey("  "+rawKey+"\n") != user.APIKeyHash {
		t.Fatal("hash is not whitespace tolerant")
	}
}

func TestIssueAPIKey_Rotation(t *testing.T) {
	user := &User{Name: "Jane Doe", Email: "jane@example.com"}

	first, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey() = %v", err)
	}
	second, err := user.IssueAPIKey()
	if err != nil {
		t.Fatalf("IssueAPIKey() = %v", err)
	}
	if first == second {
		t.Fatal("rotation produced the same key twice")
	}
	if user.APIKeyHash != HashAPIKey(second) {
		t.Fatal("stored hash does not match the latest key")
	}
	if user.APIKeyHash == HashAPIKey(first) {
		t.Fatal("old key still verifies after rotation")
	}
}
