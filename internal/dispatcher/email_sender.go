package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/wneessen/go-mail"

	"github.com/blockedby/cardpost/internal/logger"
)

// EmailMessage is a rendered email ready for the transport.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer hands a message to an email provider and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

// EmailSender is the email delivery channel.
type EmailSender struct {
	mailer   Mailer
	validate *validator.Validate
	log      *logger.Logger
}

// NewEmailSender creates the email channel. A nil mailer makes every attempt
// fail with ErrChannelNotConfigured.
func NewEmailSender(mailer Mailer, log *logger.Logger) *EmailSender {
	return &EmailSender{
		mailer:   mailer,
		validate: validator.New(),
		log:      log.Component("email"),
	}
}

// Name implements Channel.
func (s *EmailSender) Name() string { return ChannelEmail }

// Attempt renders the card email and sends it once.
func (s *EmailSender) Attempt(ctx context.Context, target Target, payload Payload) (Receipt, error) {
	if s.mailer == nil {
		return Receipt{}, fmt.Errorf("email: %w", ErrChannelNotConfigured)
	}
	if err := s.validate.Var(target.Email, "required,email"); err != nil {
		return Receipt{}, fmt.Errorf("%w: email %q", ErrInvalidRecipient, target.Email)
	}

	rendered, err := renderEmail(payload)
	if err != nil {
		return Receipt{}, err
	}

	id, err := s.mailer.Send(ctx, EmailMessage{
		To:      target.Email,
		ToName:  payload.RecipientName,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("send email: %w", err)
	}

	s.log.Debug().Str("message_id", id).Msg("email accepted by provider")
	return Receipt{MessageID: id}, nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends email over SMTP.
type SMTPMailer struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer builds an SMTP client from cfg. Authentication is only enabled
// when a username is set.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPMailer{
		cfg: cfg,
		dial: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, em EmailMessage) (string, error) {
	msg, err := m.buildMessage(em)
	if err != nil {
		return "", err
	}

	if err := m.dial(ctx, msg); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && sendErr.Reason == mail.ErrSMTPRcptTo && !sendErr.IsTemp() {
			return "", fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
		return "", err
	}

	return messageID(msg), nil
}

func (m *SMTPMailer) buildMessage(em EmailMessage) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}

	var err error
	if em.ToName != "" {
		err = msg.AddToFormat(em.ToName, em.To)
	} else {
		err = msg.To(em.To)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}

	msg.Subject(em.Subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, em.Text)
	if em.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, em.HTML)
	}
	return msg, nil
}

func messageID(msg *mail.Msg) string {
	if ids := msg.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
