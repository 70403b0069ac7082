package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/redaction-gateway/internal/config"
)

// ErrStoreUnavailable wraps transport failures talking to the backing store.
var ErrStoreUnavailable = errors.New("metadata store unavailable")

// Store is the process-wide metadata store handle. It maps a document ID to
// the serialized encrypted-pages payload for that session, with a hard
// per-entry expiry enforced by Redis itself.
//
// The store holds ciphertext only; session keys never pass through it.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    *logrus.Logger
}

// New connects to the metadata store and verifies the connection. Callers
// must treat an error as fatal at startup: every redaction session depends on
// the store for PII custody, so the service must not come up without it.
func New(cfg *config.StoreConfig, logger *logrus.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, cfg.Addr, err)
	}

	logger.WithFields(logrus.Fields{
		"addr": cfg.Addr,
		"db":   cfg.DB,
	}).Info("Connected to metadata store")

	return &Store{
		client:    client,
		opTimeout: cfg.OpTimeout,
		logger:    logger,
	}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client, opTimeout time.Duration, logger *logrus.Logger) *Store {
	return &Store{client: client, opTimeout: opTimeout, logger: logger}
}

// Put stores payload under documentID, replacing any existing entry. The
// entry expires ttl from now; after that it is gone for good.
func (s *Store) Put(ctx context.Context, documentID string, payload []byte, ttl time.Duration) error {
	ctx, cancel := s.withOpTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, documentID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, documentID, err)
	}
	return nil
}

// Get returns the payload stored under documentID. A missing entry is not an
// error: ok is false whether the session never existed or has expired, and
// callers must not try to tell the two apart.
func (s *Store) Get(ctx context.Context, documentID string) (payload []byte, ok bool, err error) {
	ctx, cancel := s.withOpTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, documentID, err)
	}
	return data, true, nil
}

// Ping verifies store connectivity. Backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withOpTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the store connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
