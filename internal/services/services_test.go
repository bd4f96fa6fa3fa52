package services

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatalf("expected correct password to check out")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("expected wrong password to fail")
	}
}
