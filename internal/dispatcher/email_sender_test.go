package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/blockedby/cardpost/internal/logger"
)

type mockMailer struct {
	sendFunc func(ctx context.Context, msg EmailMessage) (string, error)
	sent     []EmailMessage
}

func (m *mockMailer) Send(ctx context.Context, msg EmailMessage) (string, error) {
	m.sent = append(m.sent, msg)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return "<id@test>", nil
}

func testPayload() Payload {
	return Payload{
		CardURL:       "https://cards.example.com/c/abc",
		Title:         "Happy birthday",
		SenderName:    "Sam",
		RecipientName: "Ann",
	}
}

func TestEmailSender_NotConfigured(t *testing.T) {
	sender := NewEmailSender(nil, &logger.Logger{})

	_, err := sender.Attempt(context.Background(), Target{Email: "ann@example.com"}, testPayload())
	assert.ErrorIs(t, err, ErrChannelNotConfigured)
	assert.Equal(t, ChannelEmail, sender.Name())
}

func TestEmailSender_InvalidAddress(t *testing.T) {
	mailer := &mockMailer{}
	sender := NewEmailSender(mailer, &logger.Logger{})

	for _, addr := range []string{"", "not-an-email", "ann@"} {
		_, err := sender.Attempt(context.Background(), Target{Email: addr}, testPayload())
		assert.ErrorIs(t, err, ErrInvalidRecipient, addr)
	}
	assert.Empty(t, mailer.sent, "invalid addresses never reach the provider")
}

func TestEmailSender_RendersAndSends(t *testing.T) {
	mailer := &mockMailer{}
	sender := NewEmailSender(mailer, &logger.Logger{})

	receipt, err := sender.Attempt(context.Background(), Target{Email: "ann@example.com"}, testPayload())
	require.NoError(t, err)
	assert.Equal(t, "<id@test>", receipt.MessageID)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, "Ann", msg.ToName)
	assert.Equal(t, "Sam sent you a card: Happy birthday", msg.Subject)
	assert.Contains(t, msg.Text, "https://cards.example.com/c/abc")
	assert.Contains(t, msg.HTML, `href="https://cards.example.com/c/abc"`)
}

func TestEmailSender_ProviderError(t *testing.T) {
	mailer := &mockMailer{sendFunc: func(context.Context, EmailMessage) (string, error) {
		return "", errors.New("421 service not available")
	}}
	sender := NewEmailSender(mailer, &logger.Logger{})

	_, err := sender.Attempt(context.Background(), Target{Email: "ann@example.com"}, testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "421 service not available")
	assert.NotErrorIs(t, err, ErrInvalidRecipient)
}

func newTestSMTPMailer(t *testing.T) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPConfig{
		Host: "localhost",
		Port: 2525,
		From: "cards@example.com",
	})
	require.NoError(t, err)
	return m
}

func TestSMTPMailer_BuildsMessage(t *testing.T) {
	m := newTestSMTPMailer(t)

	var captured *mail.Msg
	m.dial = func(_ context.Context, msg *mail.Msg) error {
		captured = msg
		return nil
	}

	id, err := m.Send(context.Background(), EmailMessage{
		To:      "ann@example.com",
		ToName:  "Ann",
		Subject: "Sam sent you a card",
		Text:    "hello",
		HTML:    "<p>hello</p>",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NotNil(t, captured)
	to := captured.GetTo()
	require.Len(t, to, 1)
	assert.Equal(t, "ann@example.com", to[0].Address)
	assert.Equal(t, "Ann", to[0].Name)
	assert.Equal(t, []string{"Sam sent you a card"}, captured.GetGenHeader(mail.HeaderSubject))
}

func TestSMTPMailer_RejectedRecipientIsPermanent(t *testing.T) {
	m := newTestSMTPMailer(t)
	m.dial = func(context.Context, *mail.Msg) error {
		return &mail.SendError{Reason: mail.ErrSMTPRcptTo}
	}

	_, err := m.Send(context.Background(), EmailMessage{To: "ann@example.com", Subject: "s", Text: "t"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestSMTPMailer_TransportErrorIsRetryable(t *testing.T) {
	m := newTestSMTPMailer(t)
	m.dial = func(context.Context, *mail.Msg) error {
		return errors.New("dial tcp: connection refused")
	}

	_, err := m.Send(context.Background(), EmailMessage{To: "ann@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRecipient)
}
