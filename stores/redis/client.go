// Package redis is an ar.IdentityStore on Redis through go-redis.
//
// Accounts are JSON strings keyed by id.  Usernames and emails are indexed by
// SETNX reservations pointing back at the owning id, so a second writer
// claiming the same name loses at the storage level.  Provider links are
// JSON strings keyed by provider and external id, with a set per account
// listing its links.
//
// Every key shares one hash tag so multi-key transactions also work against
// a cluster.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultPrefix is prepended to every key
const DefaultPrefix = "{authrepo}:"

// ClientConfig selects a single node, sentinel or cluster deployment
type ClientConfig struct {
	Addrs      []string      `mapstructure:"addrs"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	MasterName string        `mapstructure:"master_name"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// NewUniversalClient builds a client for config and pings it.
func NewUniversalClient(ctx context.Context, config ClientConfig) (redis.UniversalClient, error) {
	if len(config.Addrs) == 0 {
		return nil, fmt.Errorf("redis: at least one address is required")
	}
	options := &redis.UniversalOptions{
		Addrs:      config.Addrs,
		Password:   config.Password,
		DB:         config.DB,
		MasterName: config.MasterName,
		MaxRetries: config.MaxRetries,
	}
	if config.Timeout > 0 {
		options.DialTimeout = config.Timeout
		options.ReadTimeout = config.Timeout
		options.WriteTimeout = config.Timeout
	}

	client := redis.NewUniversalClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %v: %w", config.Addrs, err)
	}
	return client, nil
}
