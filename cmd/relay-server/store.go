package main

import (
	"context"
	"fmt"
	"time"

	"canvas-relay/internal/env"
	"canvas-relay/internal/snapshot"

	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// newSnapshotStore builds the configured backend. The returned func releases
// its connections.
func newSnapshotStore(cfg env.Config) (snapshot.Store, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.SnapshotBackend {
	case "redis":
		store := snapshot.NewRedisStore(snapshot.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		// The relay runs without persistence until redis comes back.
		if err := store.Ping(ctx); err != nil {
			zap.L().Warn("redis unreachable, snapshots will fail until it recovers",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
		} else {
			zap.L().Info("snapshot store ready", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
		}
		return store, func() { _ = store.Close() }, nil

	case "dynamodb":
		store, err := snapshot.NewDynamoStore(ctx, snapshot.DynamoOptions{
			Region:   cfg.Dynamo.Region,
			ID:       cfg.Dynamo.ID,
			Secret:   cfg.Dynamo.Secret,
			Token:    cfg.Dynamo.Token,
			Endpoint: cfg.Dynamo.Endpoint,
			Table:    cfg.Dynamo.Table,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dynamodb snapshot store: %w", err)
		}
		zap.L().Info("snapshot store ready", zap.String("backend", "dynamodb"), zap.String("table", cfg.Dynamo.Table))
		return store, func() {}, nil

	case "memory":
		zap.L().Warn("using in-memory snapshot store, snapshots are lost on restart")
		return snapshot.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
}
