// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// BlobStore is a single-key document store used to persist the policy.
type BlobStore interface {
	// GetBlob returns nil, nil if the key is absent.
	GetBlob(ctx context.Context, key string) ([]byte, error)

	// PutBlob fully replaces the value stored under key.
	PutBlob(ctx context.Context, key string, value []byte) error
}

// Repository defines the interface for data persistence.
type Repository interface {
	BlobStore

	// Case operations
	SaveCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, caseID string) (*Case, error)
	ListCases(ctx context.Context, status CaseStatus) ([]*Case, error)
	UpdateCaseStatus(ctx context.Context, caseID string, status CaseStatus) error

	// Decisions
	SaveDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, decisionID string) (*Decision, error)
	ListDecisions(ctx context.Context, caseID string) ([]*Decision, error)

	// Analyst actions
	SaveEscalation(ctx context.Context, rec *EscalationRecord) error
	// GetEscalation returns nil, nil if the case has not been escalated.
	GetEscalation(ctx context.Context, caseID string) (*EscalationRecord, error)
	SaveTransition(ctx context.Context, t *CaseTransition) error
	// RecordTransition atomically saves t, rec when non-nil, and moves the
	// case to t.To.
	RecordTransition(ctx context.Context, t *CaseTransition, rec *EscalationRecord) error
	ListTransitions(ctx context.Context, caseID string) ([]*CaseTransition, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver" json:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `koanf:"postgres_port" json:"postgresPort"`
	PostgresUser     string `koanf:"postgres_user" json:"postgresUser"`
	PostgresPassword string `koanf:"postgres_password" json:"-"`
	PostgresDB       string `koanf:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `koanf:"postgres_sslmode" json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `koanf:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" json:"connMaxLifetime"`
}
