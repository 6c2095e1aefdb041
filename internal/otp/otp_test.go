package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasksync/internal/mail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []mail.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mail.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func newTestService() (*Service, *MemoryStore, *recordingSender) {
	store := NewMemoryStore()
	sender := &recordingSender{}
	svc := NewService(store, sender, time.Minute)
	svc.gen = func() (string, error) { return "123456", nil }
	return svc, store, sender
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, _, sender := newTestService()

	require.NoError(t, svc.Issue(ctx, PurposeVerify, " Ayu@Example.com"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ayu@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "123456")

	ok, err := svc.Verify(ctx, PurposeVerify, "ayu@example.com", "000000")
	require.NoError(t, err)
	assert.False(t, ok, "wrong code")

	ok, err = svc.Verify(ctx, PurposeReset, "ayu@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "purposes are separate")

	ok, err = svc.Verify(ctx, PurposeVerify, "ayu@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, PurposeVerify, "ayu@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestVerifyExpired(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()
	require.NoError(t, svc.Issue(ctx, PurposeReset, "budi@example.com"))

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ok, err := svc.Verify(ctx, PurposeReset, "budi@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssueSendFailure(t *testing.T) {
	svc, _, sender := newTestService()
	sender.err = errors.New("smtp down")
	err := svc.Issue(context.Background(), PurposeVerify, "a@example.com")
	assert.Error(t, err)
}

func TestGenerateIsSixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generate()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestVerifyBurnsCodeAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	require.NoError(t, svc.Issue(ctx, PurposeReset, "citra@example.com"))

	for i := 0; i < MaxAttempts; i++ {
		ok, err := svc.Verify(ctx, PurposeReset, "citra@example.com", "999999")
		require.NoError(t, err)
		require.False(t, ok)
	}

	ok, err := svc.Verify(ctx, PurposeReset, "citra@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, ok, "correct code is rejected once locked out")

	// kode baru mereset hitungan
	require.NoError(t, svc.Issue(ctx, PurposeReset, "citra@example.com"))
	ok, err = svc.Verify(ctx, PurposeReset, "citra@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyAllowsCorrectCodeBeforeLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	require.NoError(t, svc.Issue(ctx, PurposeVerify, "dodi@example.com"))

	for i := 0; i < MaxAttempts-1; i++ {
		ok, err := svc.Verify(ctx, PurposeVerify, "dodi@example.com", "000000")
		require.NoError(t, err)
		require.False(t, ok)
	}
	ok, err := svc.Verify(ctx, PurposeVerify, "dodi@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}
