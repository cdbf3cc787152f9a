// Package registry allocates member identifiers and registers members.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openclaw/memberqr/metrics"
	"github.com/openclaw/memberqr/store"
)

const (
	// IdentifierLength is the number of symbols in a member identifier.
	IdentifierLength = 8
	// Alphabet holds the symbols a member identifier is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// unbiasedLimit is the largest multiple of len(Alphabet) that fits in a
	// byte; bytes at or above it are discarded so every symbol is equally likely.
	unbiasedLimit = 256 - 256%len(Alphabet)
)

// IdentifierLookup is the part of the member store the allocator needs.
type IdentifierLookup interface {
	FindByIdentifier(ctx context.Context, memberID string) (*store.Member, error)
}

// Allocator hands out member identifiers that no stored member uses.
//
// The candidate is not reserved: a concurrent allocation may pick the same
// identifier before either is inserted. The store's unique constraint catches
// that case (see Service.Register).
type Allocator struct {
	lookup IdentifierLookup
	rand   io.Reader
	log    *slog.Logger
}

// NewAllocator returns an Allocator checking candidates against lookup. A nil
// source uses crypto/rand.
func NewAllocator(lookup IdentifierLookup, source io.Reader, log *slog.Logger) *Allocator {
	if source == nil {
		source = rand.Reader
	}
	return &Allocator{lookup: lookup, rand: source, log: log}
}

// Allocate draws random identifiers until one is not present in the store.
// Store failures are returned as is, without retrying.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for {
		candidate, err := randomIdentifier(a.rand)
		if err != nil {
			return "", fmt.Errorf("generate identifier: %w", err)
		}

		_, err = a.lookup.FindByIdentifier(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check identifier: %w", err)
		}

		metrics.IdentifierCollision()
		a.log.Debug("identifier already taken, drawing again", "member_id", candidate)
	}
}

func randomIdentifier(r io.Reader) (string, error) {
	out := make([]byte, 0, IdentifierLength)
	buf := make([]byte, IdentifierLength*2)
	for len(out) < IdentifierLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= unbiasedLimit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == IdentifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeIdentifier trims and upper-cases s.
func NormalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidIdentifier reports whether s has the shape of a member identifier.
func ValidIdentifier(s string) bool {
	if len(s) != IdentifierLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
