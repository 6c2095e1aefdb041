package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSenderComposesMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Password: "p", From: "TaskSync <no-reply@example.com>"})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "ayu@example.com", Subject: "Kode verifikasi", Body: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"ayu@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Kode verifikasi\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n123456"))
}

func TestSMTPSenderWrapsError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "a@example.com"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }

	err := s.Send(context.Background(), Message{To: "b@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "a@b.c", envelopeAddress("Name <a@b.c>"))
	assert.Equal(t, "a@b.c", envelopeAddress(" a@b.c "))
}
