package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/recur/store"
	"github.com/xraph/recur/store/cas"
)

// Collection name constants.
const (
	colRules  = "recur_rules"
	colEvents = "recur_events"
)

// Compile-time interface checks.
var (
	_ store.Store = (*Store)(nil)
	_ cas.Backend = (*Store)(nil)
)

// Option configures the MongoDB store.
type Option func(*Store)

// WithTransactions makes AdvanceCheckpoint run inside a multi-document
// transaction. It requires a replica set or sharded cluster; standalone
// servers must keep the default compare-and-swap path.
func WithTransactions(enabled bool) Option {
	return func(s *Store) { s.transactional = enabled }
}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB

	transactional bool
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all recur collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("recur/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// client returns the driver client behind the grove database.
func (s *Store) client() *mongo.Client {
	return s.mdb.Collection(colRules).Database().Client()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all recur collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colRules: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "latest_instance_date", Value: 1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "occurrence_date", Value: 1}}},
			{Keys: bson.D{{Key: "recurrence_rule_id", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "batch_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
	}
}
