package validation

import (
	"fmt"
	"strings"
	"sync"

	"courierdb/pkg/keys"
	"courierdb/pkg/models"
)

// Rules bounds draft content. Zero values disable the bound.
type Rules struct {
	MaxTextLen  int
	MaxMedia    int
	MaxMediaURL int
}

var (
	rulesMu sync.RWMutex
	rules   Rules
)

// SetRules installs the global draft rules (populated from config at
// startup).
func SetRules(r Rules) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules = r
}

func current() Rules {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	return rules
}

// ValidateDraft enforces the content invariant: a draft must carry
// non-empty text or at least one media descriptor, and every
// descriptor must have a URL. Violations of the invariant return
// models.ErrInvalidContent; bound violations return plain errors.
func ValidateDraft(text string, media []models.Media) error {
	if strings.TrimSpace(text) == "" && len(media) == 0 {
		return models.ErrInvalidContent
	}
	r := current()
	if r.MaxTextLen > 0 && len(text) > r.MaxTextLen {
		return fmt.Errorf("text exceeds %d bytes", r.MaxTextLen)
	}
	if r.MaxMedia > 0 && len(media) > r.MaxMedia {
		return fmt.Errorf("too many media entries: %d > %d", len(media), r.MaxMedia)
	}
	for i, m := range media {
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("media entry %d has no url", i)
		}
		if r.MaxMediaURL > 0 && len(m.URL) > r.MaxMediaURL {
			return fmt.Errorf("media url %d exceeds %d bytes", i, r.MaxMediaURL)
		}
	}
	return nil
}

// ValidateParticipants checks the conversation invariant: exactly two
// distinct, non-empty participants whose ids stay out of the key
// grammar. An id carrying the pair separator or ":" would make two
// different pairs collide on one conversation key.
func ValidateParticipants(sender, receiver string) error {
	if strings.TrimSpace(sender) == "" || strings.TrimSpace(receiver) == "" {
		return fmt.Errorf("sender and receiver are required")
	}
	if sender == receiver {
		return fmt.Errorf("sender and receiver must be distinct")
	}
	if strings.ContainsAny(sender, keys.ConvKeySep+":") || strings.ContainsAny(receiver, keys.ConvKeySep+":") {
		return fmt.Errorf("participant ids must not contain %q or \":\"", keys.ConvKeySep)
	}
	return nil
}
