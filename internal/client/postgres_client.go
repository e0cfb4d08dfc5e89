package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/util"
)

type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.StoreConfig
}

// NewPostgresClient opens the pool backing the transactional store.
func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	storeConfig := cfg.Store

	poolConfig, err := pgxpool.ParseConfig(storeConfig.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if storeConfig.MaxConns > 0 {
		poolConfig.MaxConns = int32(storeConfig.MaxConns)
	}
	if storeConfig.MinConns > 0 {
		poolConfig.MinConns = int32(storeConfig.MinConns)
	}
	if storeConfig.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = storeConfig.MaxConnLifetime
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	util.Info("Postgres client initialized",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns))

	return &PostgresClient{
		Pool:   pool,
		config: &storeConfig,
	}, nil
}

func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	var one int
	if err := p.Pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		util.Info("Postgres client closed")
	}
}
