package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/models"
	"cash-settlement-service/internal/util"
)

// PreparedStatements holds the statements the timeline repository uses
type PreparedStatements struct {
	AppendEvent       *gocql.Query
	AppendEventByDate *gocql.Query
	ListEvents        *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 500
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_PATH", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_PATH", "/app/certs/scylla.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_PATH", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.AppendEvent = s.Session.Query(`
		INSERT INTO cash_transaction_events (
			bucket, transaction_id, occurred_at, event_id,
			from_status, to_status, actor_id, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.AppendEventByDate = s.Session.Query(`
		INSERT INTO cash_transaction_events_by_date (
			event_date, bucket, occurred_at, transaction_id, event_id, to_status
		) VALUES (?, ?, ?, ?, ?, ?)`)

	prepared.ListEvents = s.Session.Query(`
		SELECT transaction_id, event_id, occurred_at, from_status, to_status, actor_id, note
		FROM cash_transaction_events
		WHERE bucket = ? AND transaction_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

// AppendEvent writes the timeline row and its date index row in one logged batch.
func (s *ScyllaClient) AppendEvent(ctx context.Context, event, byDate []interface{}) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(s.Prepared.AppendEvent.Statement(), event...)
	batch.Query(s.Prepared.AppendEventByDate.Statement(), byDate...)
	return s.Session.ExecuteBatch(batch)
}

// ListEvents reads one timeline partition in clustering order.
func (s *ScyllaClient) ListEvents(ctx context.Context, bucket int, transactionID string) ([]*models.TransactionEvent, error) {
	iter := s.Session.Query(s.Prepared.ListEvents.Statement(), bucket, transactionID).WithContext(ctx).Iter()

	var (
		events     []*models.TransactionEvent
		txID       string
		eventID    gocql.UUID
		occurredAt time.Time
		from, to   string
		actorID    string
		note       string
	)
	for iter.Scan(&txID, &eventID, &occurredAt, &from, &to, &actorID, &note) {
		events = append(events, &models.TransactionEvent{
			TransactionID: txID,
			EventID:       eventID.String(),
			OccurredAt:    occurredAt,
			FromStatus:    models.TransactionStatus(from),
			ToStatus:      models.TransactionStatus(to),
			ActorID:       actorID,
			Note:          note,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
