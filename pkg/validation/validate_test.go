package validation

import (
	"errors"
	"strings"
	"testing"

	"courierdb/pkg/models"
)

func TestValidateDraftContentInvariant(t *testing.T) {
	if err := ValidateDraft("", nil); !errors.Is(err, models.ErrInvalidContent) {
		t.Fatalf("empty draft must fail with ErrInvalidContent, got %v", err)
	}
	if err := ValidateDraft("   \n\t", nil); !errors.Is(err, models.ErrInvalidContent) {
		t.Fatalf("whitespace-only draft must fail with ErrInvalidContent, got %v", err)
	}
	if err := ValidateDraft("hi", nil); err != nil {
		t.Fatalf("text-only draft should pass: %v", err)
	}
	// media-only drafts are valid
	if err := ValidateDraft("", []models.Media{{URL: "https://cdn/x.png"}}); err != nil {
		t.Fatalf("media-only draft should pass: %v", err)
	}
	if err := ValidateDraft("", []models.Media{{OriginalName: "x.png"}}); err == nil {
		t.Fatalf("media without url must fail")
	}
}

func TestValidateDraftBounds(t *testing.T) {
	SetRules(Rules{MaxTextLen: 8, MaxMedia: 1, MaxMediaURL: 16})
	defer SetRules(Rules{})

	if err := ValidateDraft(strings.Repeat("a", 9), nil); err == nil {
		t.Fatalf("oversized text must fail")
	}
	if errors.Is(ValidateDraft(strings.Repeat("a", 9), nil), models.ErrInvalidContent) {
		t.Fatalf("bound violations are not content-invariant violations")
	}
	two := []models.Media{{URL: "u1"}, {URL: "u2"}}
	if err := ValidateDraft("", two); err == nil {
		t.Fatalf("too many media entries must fail")
	}
	long := []models.Media{{URL: strings.Repeat("u", 17)}}
	if err := ValidateDraft("", long); err == nil {
		t.Fatalf("oversized media url must fail")
	}
}

func TestValidateParticipants(t *testing.T) {
	if err := ValidateParticipants("alice", "bob"); err != nil {
		t.Fatalf("distinct users should pass: %v", err)
	}
	if err := ValidateParticipants("", "bob"); err == nil {
		t.Fatalf("empty sender must fail")
	}
	if err := ValidateParticipants("alice", "alice"); err == nil {
		t.Fatalf("self-conversation must fail")
	}
	// ids carrying key-grammar characters would merge distinct pairs:
	// ("a", "b~c") and ("a~b", "c") both key as a~b~c
	if err := ValidateParticipants("a", "b~c"); err == nil {
		t.Fatalf("id with pair separator must fail")
	}
	if err := ValidateParticipants("a~b", "c"); err == nil {
		t.Fatalf("sender with pair separator must fail")
	}
	if err := ValidateParticipants("alice", "bo:b"); err == nil {
		t.Fatalf("id with key segment separator must fail")
	}
}
