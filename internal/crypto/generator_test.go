package crypto

import (
	"strings"
	"testing"
)

func TestGeneratePasswordLength(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr error
	}{
		{name: "minimum", length: MinPasswordLength},
		{name: "typical", length: 24},
		{name: "maximum", length: MaxPasswordLength},
		{name: "too short", length: MinPasswordLength - 1, wantErr: ErrPasswordLength},
		{name: "too long", length: MaxPasswordLength + 1, wantErr: ErrPasswordLength},
		{name: "zero", length: 0, wantErr: ErrPasswordLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			password, err := GeneratePassword(tt.length)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("GeneratePassword() error = %v, want %v", err, tt.wantErr)
				}
				if password != "" {
					t.Error("GeneratePassword() should return empty string on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GeneratePassword() unexpected error: %v", err)
			}
			if len(password) != tt.length {
				t.Errorf("GeneratePassword() length = %d, want %d", len(password), tt.length)
			}
		})
	}
}

func TestGeneratePasswordContainsEveryClass(t *testing.T) {
	// Repeated to make a missing class show up despite randomness.
	for i := 0; i < 50; i++ {
		password, err := GeneratePassword(MinPasswordLength)
		if err != nil {
			t.Fatalf("GeneratePassword() unexpected error: %v", err)
		}
		for _, charset := range []string{uppercaseChars, lowercaseChars, numberChars, symbolChars} {
			if !strings.ContainsAny(password, charset) {
				t.Errorf("password %q has no character from %q", password, charset)
			}
		}
	}
}

func TestGeneratePasswordUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		password, err := GeneratePassword(20)
		if err != nil {
			t.Fatalf("GeneratePassword() unexpected error: %v", err)
		}
		if seen[password] {
			t.Errorf("duplicate password generated: %q", password)
		}
		seen[password] = true
	}
}
