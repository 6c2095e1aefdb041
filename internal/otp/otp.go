// Package otp issues single-use six digit codes for email verification and
// password reset.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"tasksync/internal/mail"
	"tasksync/internal/models"
)

type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

const (
	DefaultTTL = 10 * time.Minute
	// MaxAttempts wrong guesses burn the pending code.
	MaxAttempts = 5
)

var ErrNotFound = errors.New("otp not found")

// Store keeps codes until they expire or are consumed.
type Store interface {
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Delete reports whether the key still existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Fail records a wrong guess for key and returns the number of failed
	// attempts so far. Save resets the count.
	Fail(ctx context.Context, key string, ttl time.Duration) (int, error)
}

func Key(purpose Purpose, email string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, models.NormalizeEmail(email))
}

type Service struct {
	store  Store
	sender mail.Sender
	ttl    time.Duration
	gen    func() (string, error)
}

func NewService(store Store, sender mail.Sender, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, sender: sender, ttl: ttl, gen: generate}
}

func generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue replaces any pending code for (purpose, email) and mails the new one.
func (s *Service) Issue(ctx context.Context, purpose Purpose, email string) error {
	code, err := s.gen()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.Save(ctx, Key(purpose, email), code, s.ttl); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}

	subject, intro := "Kode verifikasi TaskSync", "Gunakan kode berikut untuk memverifikasi email Anda:"
	if purpose == PurposeReset {
		subject, intro = "Reset password TaskSync", "Gunakan kode berikut untuk mengatur ulang password Anda:"
	}
	body := fmt.Sprintf("%s\n\n%s\n\nKode berlaku selama %d menit.", intro, code, int(s.ttl/time.Minute))
	if err := s.sender.Send(ctx, mail.Message{To: models.NormalizeEmail(email), Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Verify consumes the code when it matches. After MaxAttempts wrong
// guesses the code is deleted and a new one has to be issued.
func (s *Service) Verify(ctx context.Context, purpose Purpose, email, code string) (bool, error) {
	key := Key(purpose, email)
	stored, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		failed, err := s.store.Fail(ctx, key, s.ttl)
		if err != nil {
			return false, fmt.Errorf("count otp attempt: %w", err)
		}
		if failed >= MaxAttempts {
			if _, err := s.store.Delete(ctx, key); err != nil {
				return false, fmt.Errorf("burn otp: %w", err)
			}
		}
		return false, nil
	}
	deleted, err := s.store.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	// a concurrent request consumed it first
	return deleted, nil
}
