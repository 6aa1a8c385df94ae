package services

import (
	"context"
	"time"

	"dinepay/internal/gateway"
)

// ConfigService exposes the client-safe slice of gateway configuration
// (publishable keys, application ids, test-mode flags). Secrets never pass
// through here; adapters only surface their PublicConfig map.
type ConfigService struct {
	gateways *gateway.Registry
	cache    *RedisCache
}

func NewConfigService(gateways *gateway.Registry, cache *RedisCache) *ConfigService {
	return &ConfigService{gateways: gateways, cache: cache}
}

// PublicGatewayConfig returns per-gateway public config, cached briefly
// since it only changes on deploy.
func (s *ConfigService) PublicGatewayConfig(ctx context.Context) (map[string]map[string]string, error) {
	build := func() (map[string]map[string]string, error) {
		out := make(map[string]map[string]string)
		for _, name := range s.gateways.Names() {
			adapter, err := s.gateways.Get(name)
			if err != nil {
				continue
			}
			out[string(name)] = adapter.PublicConfig()
		}
		return out, nil
	}

	if s.cache == nil {
		return build()
	}
	return GetOrSet(s.cache, ctx, "config:gateways:public", 10*time.Minute, build)
}
