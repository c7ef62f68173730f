package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client SESEmail uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds sender settings for SESEmail.
type SESConfig struct {
	FromAddress     string
	DefaultFromName string
	// ConfigSetName is the SES configuration set used for tracking. Optional.
	ConfigSetName string
}

// SESEmail sends email with AWS SES v2. The SDK retries throttling on its
// own, so no breaker is layered on top.
type SESEmail struct {
	api SESAPI
	cfg SESConfig
}

func NewSESEmail(awsCfg aws.Config, cfg SESConfig) *SESEmail {
	return &SESEmail{api: sesv2.NewFromConfig(awsCfg), cfg: cfg}
}

// NewSESEmailWithAPI is used by tests to inject a fake SESAPI.
func NewSESEmailWithAPI(api SESAPI, cfg SESConfig) *SESEmail {
	return &SESEmail{api: api, cfg: cfg}
}

func (s *SESEmail) SendEmail(ctx context.Context, msg EmailMessage) (string, error) {
	name := msg.FromName
	if name == "" {
		name = s.cfg.DefaultFromName
	}
	from := s.cfg.FromAddress
	if name != "" {
		from = fmt.Sprintf("%s <%s>", name, s.cfg.FromAddress)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &sestypes.Body{},
			},
		},
	}
	if msg.HTML != "" {
		input.Content.Simple.Body.Html = &sestypes.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &sestypes.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.cfg.ConfigSetName != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigSetName)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

func (s *SESEmail) Close() error { return nil }

// mapSESError separates rejections of this message from account or service
// conditions (throttling, paused sending, quota) that clear up on their own.
func mapSESError(err error) error {
	var (
		rejected   *sestypes.MessageRejected
		badRequest *sestypes.BadRequestException
		unverified *sestypes.MailFromDomainNotVerifiedException
		notFound   *sestypes.NotFoundException
	)
	if errors.As(err, &rejected) || errors.As(err, &badRequest) ||
		errors.As(err, &unverified) || errors.As(err, &notFound) {
		return permanent("ses", 0, err)
	}
	return temporary("ses", 0, err)
}

var _ EmailTransport = (*SESEmail)(nil)
