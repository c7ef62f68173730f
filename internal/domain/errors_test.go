package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

func TestStageErrorClassification(t *testing.T) {
	base := errors.New("boom")

	t.Run("permanent", func(t *testing.T) {
		err := domain.Permanent(domain.StageRender, base)
		if domain.IsRetryable(err) {
			t.Fatal("expected permanent")
		}
		if domain.StageOf(err) != domain.StageRender {
			t.Fatalf("expected render stage, got %q", domain.StageOf(err))
		}
		if !errors.Is(err, base) {
			t.Fatal("expected wrapped error to unwrap")
		}
	})

	t.Run("retryable survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("route: %w", domain.Retryable(domain.StageEnrich, base))
		if !domain.IsRetryable(err) {
			t.Fatal("expected retryable")
		}
		if domain.StageOf(err) != domain.StageEnrich {
			t.Fatalf("expected enrich stage, got %q", domain.StageOf(err))
		}
	})

	t.Run("untagged errors retry", func(t *testing.T) {
		if !domain.IsRetryable(base) {
			t.Fatal("expected untagged error to be retryable")
		}
		if domain.StageOf(base) != "" {
			t.Fatal("expected no stage")
		}
	})

	t.Run("nil", func(t *testing.T) {
		if domain.Permanent(domain.StageDecode, nil) != nil || domain.Retryable(domain.StageDecode, nil) != nil {
			t.Fatal("expected nil passthrough")
		}
		if domain.IsRetryable(nil) {
			t.Fatal("nil is not retryable")
		}
	})
}

func TestRecipientAddress(t *testing.T) {
	mc := domain.MessageContext{Client: domain.Client{ID: "u1", FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"}}
	r := mc.Recipient()
	if r.Name != "Jane Doe" {
		t.Fatalf("unexpected name %q", r.Name)
	}
	if r.Address(domain.ChannelEmail) != "jane@example.com" {
		t.Fatal("expected email address")
	}
	if r.Address(domain.ChannelSMS) != "" {
		t.Fatal("expected no phone")
	}
	if r.Address(domain.ChannelPush) != "" {
		t.Fatal("expected push skipped without device tokens")
	}

	mc.Client.DeviceTokens = []string{"tok"}
	if mc.Recipient().Address(domain.ChannelPush) != "u1" {
		t.Fatal("expected push addressed to user id")
	}
}
