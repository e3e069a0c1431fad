package credential

import "testing"

func TestHashAndVerifyPassword_Roundtrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyPassword(hash, "correct-horse-battery-staple") {
		t.Fatal("expected correct password to verify")
	}
}

func TestVerifyPassword_WrongPasswordFails(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestHashPassword_ProducesDistinctSalts(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected two hashes of the same password to differ due to random salts")
	}
}

func TestVerifyPassword_RejectsMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"not-a-valid-hash",
		"scrypt:onlytwofields",
		"bcrypt:aa:bb",
		"scrypt:zz:bb",
	}
	for _, hash := range cases {
		if VerifyPassword(hash, "anything") {
			t.Errorf("expected malformed hash %q to fail verification", hash)
		}
	}
}
