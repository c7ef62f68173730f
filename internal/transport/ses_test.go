package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/notifyhub/salon-notifier/internal/transport"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESEmail_Send(t *testing.T) {
	api := &fakeSES{}
	tr := transport.NewSESEmailWithAPI(api, transport.SESConfig{FromAddress: "noreply@example.com", ConfigSetName: "tracking"})

	id, err := tr.SendEmail(context.Background(), transport.EmailMessage{
		To:       "jane@example.com",
		Subject:  "Booked",
		HTML:     "<p>hi</p>",
		Text:     "hi",
		FromName: "Shear Bliss",
		ReplyTo:  "desk@shearbliss.example",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "ses-1" {
		t.Fatalf("expected ses-1, got %q", id)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Shear Bliss <noreply@example.com>" {
		t.Fatalf("unexpected from %q", got)
	}
	if aws.ToString(api.input.ConfigurationSetName) != "tracking" {
		t.Fatal("expected configuration set")
	}
	if len(api.input.ReplyToAddresses) != 1 || api.input.Content.Simple.Body.Html == nil || api.input.Content.Simple.Body.Text == nil {
		t.Fatalf("unexpected input: %+v", api.input)
	}
}

func TestSESEmail_ErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		temporary bool
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("bad")}, false},
		{"bad request", &sestypes.BadRequestException{Message: aws.String("bad")}, false},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("slow")}, true},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, true},
		{"unknown", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := transport.NewSESEmailWithAPI(&fakeSES{err: tc.err}, transport.SESConfig{FromAddress: "noreply@example.com"})
			_, err := tr.SendEmail(context.Background(), transport.EmailMessage{To: "x@example.com", Subject: "s", Text: "t"})
			if err == nil {
				t.Fatal("expected error")
			}
			if transport.IsTemporary(err) != tc.temporary {
				t.Fatalf("expected temporary=%v for %v", tc.temporary, err)
			}
		})
	}
}
