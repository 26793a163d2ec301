package cache

import (
	"github.com/go-redis/redis/v8"
)

// ClientOptions selects a standalone server or a Sentinel-managed master.
type ClientOptions struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	MasterName    string
	SentinelAddrs []string
}

// NewClient builds the shared Redis client used by the cache, the promotion
// queue and the mail notifier.
func NewClient(opts ClientOptions) redis.UniversalClient {
	if opts.MasterName != "" && len(opts.SentinelAddrs) > 0 {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opts.MasterName,
			SentinelAddrs: opts.SentinelAddrs,
			Password:      opts.Password,
			DB:            opts.DB,
			PoolSize:      opts.PoolSize,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
}
