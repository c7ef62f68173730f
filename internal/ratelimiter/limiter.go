package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

// ChannelLimiters holds one token bucket per delivery channel so a burst of
// events cannot exceed a provider's send quota. Burst equals the rate: no
// saved-up capacity beyond the per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates limiters allowing ratePerSec sends per second on every channel.
// A rate of zero or less disables limiting.
func New(ratePerSec int) *ChannelLimiters {
	cl := &ChannelLimiters{limiters: make(map[domain.Channel]*rate.Limiter)}
	for _, ch := range domain.AllChannels() {
		if ratePerSec <= 0 {
			cl.limiters[ch] = rate.NewLimiter(rate.Inf, 0)
			continue
		}
		cl.limiters[ch] = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return cl
}

// Wait blocks until the channel's limiter grants a token.
// Returns a non-nil error only if ctx ends first.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	l, ok := cl.limiters[ch]
	if !ok {
		return domain.ErrInvalidChannel
	}
	return l.Wait(ctx)
}
