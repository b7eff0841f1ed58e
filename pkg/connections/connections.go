package connections

import (
	"context"
	"strings"

	"courierdb/pkg/keys"
)

// Gateway answers whether two users hold an accepted connection and
// may exchange messages. The connection graph itself is owned by the
// surrounding platform; the core only consults it on append.
type Gateway interface {
	Connected(ctx context.Context, a, b string) (bool, error)
}

// AllowAll permits every pair. Used when the deployment delegates
// connection checks to an upstream gateway.
type AllowAll struct{}

func (AllowAll) Connected(context.Context, string, string) (bool, error) { return true, nil }

// Static permits only pairs declared in config. Pair order does not
// matter.
type Static struct {
	pairs map[string]struct{}
}

// NewStatic builds a Static gateway from "a~b"-style pair entries or
// any two-id entries joined with the conversation separator.
func NewStatic(pairs [][2]string) *Static {
	s := &Static{pairs: make(map[string]struct{}, len(pairs))}
	for _, p := range pairs {
		s.pairs[keys.ConvKey(p[0], p[1])] = struct{}{}
	}
	return s
}

func (s *Static) Connected(_ context.Context, a, b string) (bool, error) {
	_, ok := s.pairs[keys.ConvKey(a, b)]
	return ok, nil
}

// NewStaticFromEntries parses config-declared "a~b" pair entries into
// a Static gateway. Entry order within a pair does not matter.
func NewStaticFromEntries(entries []string) (*Static, error) {
	s := &Static{pairs: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		a, b, err := keys.ConvParticipants(strings.TrimSpace(e))
		if err != nil {
			return nil, err
		}
		s.pairs[keys.ConvKey(a, b)] = struct{}{}
	}
	return s, nil
}
