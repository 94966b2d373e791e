// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require shopID for strict shop isolation.
type Repository interface {
	// Order operations
	SaveOrder(ctx context.Context, shopID string, order *Order) error
	GetOrder(ctx context.Context, shopID string, orderID string) (*Order, error)

	// ListOrdersByRange returns classified orders created in [start, end),
	// newest first, truncated at limit. The returned bool reports whether
	// the result set was clamped.
	ListOrdersByRange(ctx context.Context, shopID string, start, end time.Time, limit int) ([]*Order, bool, error)

	// FirstOrderChannels returns each customer's first-ever order channel
	// across full history, keyed by customer ID. Customers with no orders
	// are omitted.
	FirstOrderChannels(ctx context.Context, shopID string, customerIDs []string) (map[string]Channel, error)

	// Domain rule operations
	SaveDomainRule(ctx context.Context, shopID string, rule *DomainRule) error
	ListDomainRules(ctx context.Context, shopID string) ([]DomainRule, error)
	DeleteDomainRule(ctx context.Context, shopID string, domain string) error

	// UTM rule operations
	SaveUTMRule(ctx context.Context, shopID string, rule *UTMRule) error
	ListUTMRules(ctx context.Context, shopID string) ([]UTMRule, error)
	DeleteUTMRule(ctx context.Context, shopID string, value string) error

	// Custom CEL rule operations
	SaveCustomRule(ctx context.Context, shopID string, rule *CustomRule) error
	GetCustomRule(ctx context.Context, shopID string, ruleID string) (*CustomRule, error)
	ListCustomRules(ctx context.Context, shopID string) ([]*CustomRule, error)
	DeleteCustomRule(ctx context.Context, shopID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
