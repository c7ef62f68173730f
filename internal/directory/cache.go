package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

const tenantNamespace = "tenant"

// CachedTenants keeps tenant branding in Redis under "tenant:<id>".
// Redis failures are logged and fall through to the directory; a cache
// outage never fails an event. Not-found answers are not cached.
type CachedTenants struct {
	next   Tenants
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedTenants(next Tenants, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedTenants {
	return &CachedTenants{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedTenants) GetTenant(ctx context.Context, tenantID string) (domain.TenantBrandingProfile, error) {
	key := tenantNamespace + ":" + tenantID

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var b domain.TenantBrandingProfile
		if jerr := json.Unmarshal(raw, &b); jerr == nil {
			return b, nil
		}
		c.logger.Warn("discarding undecodable tenant cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tenant cache read failed", zap.String("key", key), zap.Error(err))
	}

	b, err := c.next.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.TenantBrandingProfile{}, err
	}

	if enc, jerr := json.Marshal(b); jerr == nil {
		if serr := c.client.Set(ctx, key, enc, c.ttl).Err(); serr != nil {
			c.logger.Warn("tenant cache write failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return b, nil
}

var _ Tenants = (*CachedTenants)(nil)
