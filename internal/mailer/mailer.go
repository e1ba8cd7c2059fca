// Package mailer delivers outbound email through SES: simple HTML mail
// for reminders and alerts, raw multipart MIME when a PDF packet rides
// along.
package mailer

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
)

// SESAPI is the slice of the SES client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// Attachment is a file carried in a raw message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one outbound email.
type Message struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer sends Messages through SES. Failures surface to the caller;
// the mailer never retries.
type Mailer struct {
	api     SESAPI
	from    string
	timeout time.Duration
}

// New builds a Mailer from the default AWS credential chain.
func New(ctx context.Context, cfg config.MailConfig) (*Mailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, eris.Wrap(err, "mailer: load aws config")
	}
	return NewWithAPI(ses.NewFromConfig(awsCfg), cfg.From, time.Duration(cfg.TimeoutSecs)*time.Second), nil
}

// NewWithAPI wires an explicit SES client, used by tests.
func NewWithAPI(api SESAPI, from string, timeout time.Duration) *Mailer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mailer{api: api, from: from, timeout: timeout}
}

// Send delivers one message. Messages with attachments go out as raw
// multipart MIME; plain HTML otherwise.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return eris.New("mailer: no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if len(msg.Attachments) > 0 {
		return m.sendRaw(ctx, msg)
	}
	return m.sendSimple(ctx, msg)
}

func (m *Mailer) sendSimple(ctx context.Context, msg Message) error {
	_, err := m.api.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML)},
			},
		},
	})
	if err != nil {
		return eris.Wrap(err, "mailer: send email")
	}

	zap.L().Info("email sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (m *Mailer) sendRaw(ctx context.Context, msg Message) error {
	raw, err := buildRawMessage(m.from, msg)
	if err != nil {
		return err
	}

	_, err = m.api.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(m.from),
		Destinations: msg.To,
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return eris.Wrap(err, "mailer: send raw email")
	}

	zap.L().Info("email sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
