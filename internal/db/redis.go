package db

import (
	"github.com/redis/go-redis/v9"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/config"
)

// ConnectRedis returns nil when no address is configured; the engine then
// runs without the fix bridge and the state mirror.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
