package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/logger"
)

// Open builds the backend named by cfg.Backend. It returns the tab id in
// use, which is generated when cfg.TabID is empty.
func Open(ctx context.Context, cfg config.SessionConfig) (Backend, string, error) {
	tabID := cfg.TabID
	if tabID == "" {
		tabID = uuid.NewString()
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), tabID, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.SQLitePath, tabID)
		if err != nil {
			return nil, "", err
		}
		return s, tabID, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, "", fmt.Errorf("session: connect redis %s: %w", cfg.RedisAddr, err)
		}
		logger.L.Info("redis session store connected", "addr", cfg.RedisAddr, "tab_id", tabID)
		s, err := NewRedisStore(client, tabID, cfg.TTL)
		if err != nil {
			_ = client.Close()
			return nil, "", err
		}
		return s, tabID, nil
	default:
		return nil, "", fmt.Errorf("session: unsupported backend %q", cfg.Backend)
	}
}
