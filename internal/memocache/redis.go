package memocache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// RedisTLSConfig controls TLS for the Redis/Valkey-backed principal cache.
type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

// RedisConfig describes how to reach the shared principal-set cache.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
}

type redisPrincipalCache struct {
	client valkey.Client
}

// NewRedisPrincipalCache builds a Valkey-backed PrincipalCache suitable for
// sharing resolved principal sets across server processes. Principal sets
// are plain string slices, so unlike compiled tries they serialize cleanly.
func NewRedisPrincipalCache(cfg RedisConfig) (PrincipalCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("memocache: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, fmt.Errorf("memocache: read redis ca file: %w", err)
				}
				return nil, fmt.Errorf("memocache: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("memocache: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("memocache: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("memocache: redis ping: %w", err)
	}

	return &redisPrincipalCache{client: client}, nil
}

func (c *redisPrincipalCache) Lookup(ctx context.Context, key string) (PrincipalEntry, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return PrincipalEntry{}, false, nil
		}
		return PrincipalEntry{}, false, fmt.Errorf("memocache: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return PrincipalEntry{}, false, fmt.Errorf("memocache: redis get bytes: %w", err)
	}
	var entry PrincipalEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return PrincipalEntry{}, false, fmt.Errorf("memocache: redis unmarshal: %w", err)
	}
	return entry, true, nil
}

func (c *redisPrincipalCache) Store(ctx context.Context, key string, entry PrincipalEntry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		return errors.New("memocache: redis entry expiry required")
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("memocache: redis marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(key).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("memocache: redis set: %w", err)
	}
	return nil
}

func (c *redisPrincipalCache) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	const batchSize = 100
	pattern := prefix + "*"
	cursor := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cmd := c.client.B().Scan().Cursor(cursor).Match(pattern).Count(int64(batchSize)).Build()
		resp := c.client.Do(ctx, cmd)
		if err := resp.Error(); err != nil {
			return fmt.Errorf("memocache: redis scan: %w", err)
		}
		scanResult, err := resp.AsScanEntry()
		if err != nil {
			return fmt.Errorf("memocache: redis scan parse: %w", err)
		}
		if len(scanResult.Elements) > 0 {
			unlinkCmd := c.client.B().Unlink().Key(scanResult.Elements...).Build()
			if err := c.client.Do(ctx, unlinkCmd).Error(); err != nil {
				return fmt.Errorf("memocache: redis unlink: %w", err)
			}
		}
		cursor = scanResult.Cursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (c *redisPrincipalCache) Close(context.Context) error {
	c.client.Close()
	return nil
}
