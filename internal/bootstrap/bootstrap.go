// Package bootstrap connects the backends shared by the console binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/db"
	redisclient "github.com/hackgods/appointment-admin-console/internal/redis"
	"github.com/hackgods/appointment-admin-console/internal/upstream"
)

type Deps struct {
	Repo   appointment.Repository
	PgPool *pgxpool.Pool
	Redis  *redis.Client

	logger *zap.Logger
}

// Open builds the appointment source selected by cfg.Source and connects to
// Redis. Redis is optional: when it cannot be reached Deps.Redis is nil and
// reminders go out without a cooldown.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Deps, error) {
	d := &Deps{logger: logger}

	switch cfg.Source {
	case config.SourcePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return nil, err
		}
		d.PgPool = pool
		d.Repo = appointment.NewPgRepository(pool)
		logger.Info("connected to Postgres")
	default:
		d.Repo = upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamToken, cfg.UpstreamTimeout, logger)
		logger.Info("using appointment service", zap.String("base_url", cfg.UpstreamBaseURL))
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, reminder cooldown and conflict reports disabled", zap.Error(err))
	} else {
		d.Redis = rdb
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	return d, nil
}

// ReminderGate returns nil when Redis is not connected.
func (d *Deps) ReminderGate(cooldown time.Duration) redisclient.ReminderGate {
	if d.Redis == nil {
		return nil
	}
	return redisclient.NewRedisReminderGate(d.Redis, cooldown)
}

// ReportStore returns nil when Redis is not connected.
func (d *Deps) ReportStore(ttl time.Duration) *redisclient.ReportStore {
	if d.Redis == nil {
		return nil
	}
	return redisclient.NewReportStore(d.Redis, ttl)
}

func (d *Deps) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if d.PgPool != nil {
		d.PgPool.Close()
	}
}
