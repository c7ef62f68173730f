package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/notifyhub/salon-notifier/internal/config"
	"github.com/notifyhub/salon-notifier/internal/transport"
)

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

type transportSet struct {
	email transport.EmailTransport
	sms   transport.SMSTransport
	push  transport.PushTransport
}

// buildTransports selects one implementation per channel. It runs once at
// startup; nothing switches transports afterwards.
func buildTransports(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*transportSet, error) {
	null := transport.NewNull(logger)
	ts := &transportSet{email: null, sms: null, push: null}

	switch cfg.EmailTransport {
	case "http":
		ts.email = transport.NewHTTPEmail(cfg.EmailGatewayURL, cfg.EmailFromName, cfg.ChannelTimeout, logger)
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		ts.email = transport.NewSESEmail(awsCfg, transport.SESConfig{
			FromAddress:     cfg.EmailFromAddress,
			DefaultFromName: cfg.EmailFromName,
			ConfigSetName:   cfg.SESConfigurationSet,
		})
	}
	if cfg.SMSTransport == "http" {
		ts.sms = transport.NewHTTPSMS(cfg.SMSGatewayURL, cfg.ChannelTimeout, logger)
	}
	if cfg.PushTransport == "http" {
		ts.push = transport.NewHTTPPush(cfg.PushGatewayURL, cfg.ChannelTimeout, logger)
	}

	logger.Info("transports selected",
		zap.String("email", cfg.EmailTransport),
		zap.String("sms", cfg.SMSTransport),
		zap.String("push", cfg.PushTransport),
	)
	return ts, nil
}

func (ts *transportSet) close(logger *zap.Logger) {
	closers := map[string]interface{ Close() error }{
		"email": ts.email,
		"sms":   ts.sms,
		"push":  ts.push,
	}
	for name, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("transport close failed", zap.String("channel", name), zap.Error(err))
		}
	}
}
