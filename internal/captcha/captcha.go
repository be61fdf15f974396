// Package captcha generates and verifies single-use CAPTCHA challenges.
// Challenges are short random strings rendered as inline SVG and stored in
// the ephemeral record store under an opaque id. Verification consumes the
// challenge whatever the outcome, so one challenge can never be brute-forced
// by repeated guesses.
package captcha

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/ephemeral"
)

// challengeLength is the number of glyphs in a challenge.
const challengeLength = 5

// charset excludes glyphs that are ambiguous at small sizes (0oO1ilI).
const charset = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// Challenge is a freshly generated captcha ready to send to the client.
// The solution is never included -- it lives only in the ephemeral store.
type Challenge struct {
	ID  string `json:"captchaId"`
	SVG string `json:"svg"`
}

// Service issues and verifies captcha challenges.
type Service struct {
	store ephemeral.Store[string]
	ttl   time.Duration
}

// NewService creates a captcha service storing solutions in the given
// ephemeral store with the given TTL.
func NewService(store ephemeral.Store[string], ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// New generates a challenge, stores its lowercased solution under a fresh
// opaque id, and returns the id with the rendered SVG.
func (s *Service) New(ctx context.Context) (*Challenge, error) {
	text, err := randomText(challengeLength)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating captcha text: %w", err))
	}

	id := uuid.NewString()
	if err := s.store.Put(ctx, id, strings.ToLower(text), s.ttl); err != nil {
		return nil, apperror.NewDependency(fmt.Errorf("storing captcha: %w", err))
	}

	slog.Debug("captcha issued", slog.String("captcha_id", id))

	return &Challenge{ID: id, SVG: renderSVG(text)}, nil
}

// Verify checks answer against the stored solution for id. The challenge is
// consumed (one-shot take) before the comparison, so a wrong answer still
// burns it. Comparison is case-insensitive.
func (s *Service) Verify(ctx context.Context, id, answer string) error {
	solution, ok, err := s.store.Take(ctx, id)
	if err != nil {
		return apperror.NewDependency(fmt.Errorf("reading captcha: %w", err))
	}
	if !ok || solution != strings.ToLower(strings.TrimSpace(answer)) {
		return apperror.NewUnauthorized("captcha mismatch or expired")
	}
	return nil
}

// randomText picks n characters from the charset using crypto/rand.
func randomText(n int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b), nil
}
