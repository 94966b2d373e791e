// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveOrder stores an order with shop isolation. Re-saving an existing
// order overwrites it, which is how reclassification rewrites results.
func (r *SQLRepository) SaveOrder(ctx context.Context, shopID string, order *domain.Order) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	tags, _ := json.Marshal(order.Tags)
	notes, _ := json.Marshal(order.NoteAttributes)
	lineItems, _ := json.Marshal(order.LineItems)
	signals, _ := json.Marshal(order.Signals)

	newCustomer := 0
	if order.NewCustomer {
		newCustomer = 1
	}

	query := `
		INSERT INTO orders (
			id, shop_id, name, currency, total_price, subtotal_price,
			refunded_total, referring_site, landing_site, utm_source,
			utm_medium, source_channel, tags, note_attributes, customer_id,
			new_customer, line_items, created_at, ingested_at,
			channel, detection_note, signals
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, id) DO UPDATE SET
			name = excluded.name,
			currency = excluded.currency,
			total_price = excluded.total_price,
			subtotal_price = excluded.subtotal_price,
			refunded_total = excluded.refunded_total,
			referring_site = excluded.referring_site,
			landing_site = excluded.landing_site,
			utm_source = excluded.utm_source,
			utm_medium = excluded.utm_medium,
			source_channel = excluded.source_channel,
			tags = excluded.tags,
			note_attributes = excluded.note_attributes,
			customer_id = excluded.customer_id,
			new_customer = excluded.new_customer,
			line_items = excluded.line_items,
			created_at = excluded.created_at,
			ingested_at = excluded.ingested_at,
			channel = excluded.channel,
			detection_note = excluded.detection_note,
			signals = excluded.signals
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		order.ID, shopID, order.Name, order.Currency,
		order.TotalPrice, order.SubtotalPrice, order.RefundedTotal,
		order.ReferringSite, order.LandingSite,
		order.UTMSource, order.UTMMedium, order.SourceChannel,
		string(tags), string(notes), order.CustomerID,
		newCustomer, string(lineItems),
		order.CreatedAt, order.IngestedAt,
		string(order.Channel), order.DetectionNote, string(signals),
	)
	return err
}

const orderColumns = `
	id, shop_id, name, currency, total_price, subtotal_price,
	refunded_total, referring_site, landing_site, utm_source,
	utm_medium, source_channel, tags, note_attributes, customer_id,
	new_customer, line_items, created_at, ingested_at,
	channel, detection_note, signals
`

func scanOrder(scan func(...any) error) (*domain.Order, error) {
	var o domain.Order
	var subtotal sql.NullFloat64
	var tags, notes, lineItems, signals, channel string
	var newCustomer int

	err := scan(
		&o.ID, &o.ShopID, &o.Name, &o.Currency,
		&o.TotalPrice, &subtotal, &o.RefundedTotal,
		&o.ReferringSite, &o.LandingSite,
		&o.UTMSource, &o.UTMMedium, &o.SourceChannel,
		&tags, &notes, &o.CustomerID,
		&newCustomer, &lineItems,
		&o.CreatedAt, &o.IngestedAt,
		&channel, &o.DetectionNote, &signals,
	)
	if err != nil {
		return nil, err
	}

	if subtotal.Valid {
		v := subtotal.Float64
		o.SubtotalPrice = &v
	}
	o.NewCustomer = newCustomer == 1
	o.Channel = domain.Channel(channel)
	json.Unmarshal([]byte(tags), &o.Tags)
	json.Unmarshal([]byte(notes), &o.NoteAttributes)
	json.Unmarshal([]byte(lineItems), &o.LineItems)
	json.Unmarshal([]byte(signals), &o.Signals)

	return &o, nil
}

// GetOrder retrieves an order by ID with shop isolation.
func (r *SQLRepository) GetOrder(ctx context.Context, shopID string, orderID string) (*domain.Order, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE shop_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), shopID, orderID)
	order, err := scanOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByRange retrieves orders created in [start, end), newest
// first. The result is truncated at limit; the returned bool reports
// whether truncation happened.
func (r *SQLRepository) ListOrdersByRange(ctx context.Context, shopID string, start, end time.Time, limit int) ([]*domain.Order, bool, error) {
	if shopID == "" {
		return nil, false, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = domain.DefaultMaxOrdersPerQuery
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE shop_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	// Fetch one extra row to detect clamping.
	rows, err := r.db.QueryContext(ctx, r.rebind(query), shopID, start, end, limit+1)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, false, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	clamped := len(orders) > limit
	if clamped {
		orders = orders[:limit]
	}
	return orders, clamped, nil
}

// FirstOrderChannels resolves each customer's first-ever order channel
// across full history. Customers with no orders are omitted.
func (r *SQLRepository) FirstOrderChannels(ctx context.Context, shopID string, customerIDs []string) (map[string]domain.Channel, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}
	if len(customerIDs) == 0 {
		return map[string]domain.Channel{}, nil
	}

	placeholders := strings.Repeat("?,", len(customerIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT o.customer_id, o.channel
		FROM orders o
		JOIN (
			SELECT customer_id, MIN(created_at) AS first_at
			FROM orders
			WHERE shop_id = ? AND customer_id IN (` + placeholders + `)
			GROUP BY customer_id
		) f ON o.customer_id = f.customer_id AND o.created_at = f.first_at
		WHERE o.shop_id = ?
	`

	args := make([]any, 0, len(customerIDs)+2)
	args = append(args, shopID)
	for _, id := range customerIDs {
		args = append(args, id)
	}
	args = append(args, shopID)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]domain.Channel, len(customerIDs))
	for rows.Next() {
		var customerID, channel string
		if err := rows.Scan(&customerID, &channel); err != nil {
			return nil, err
		}
		// Created-at ties can yield multiple rows; the first wins.
		if _, ok := result[customerID]; !ok {
			result[customerID] = domain.Channel(channel)
		}
	}
	return result, rows.Err()
}

// SaveDomainRule upserts a merchant domain rule.
func (r *SQLRepository) SaveDomainRule(ctx context.Context, shopID string, rule *domain.DomainRule) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}
	if rule.Domain == "" {
		return fmt.Errorf("%w: rule domain is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO domain_rules (shop_id, domain, channel, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, domain) DO UPDATE SET
			channel = excluded.channel,
			source = excluded.source,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		shopID, strings.ToLower(rule.Domain), string(rule.Channel), string(rule.Source), now, now)
	return err
}

// ListDomainRules retrieves a shop's custom domain rules.
func (r *SQLRepository) ListDomainRules(ctx context.Context, shopID string) ([]domain.DomainRule, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `SELECT domain, channel, source FROM domain_rules WHERE shop_id = ? ORDER BY domain`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.DomainRule
	for rows.Next() {
		var rule domain.DomainRule
		var channel, source string
		if err := rows.Scan(&rule.Domain, &channel, &source); err != nil {
			return nil, err
		}
		rule.Channel = domain.Channel(channel)
		rule.Source = domain.RuleSource(source)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteDomainRule removes a custom domain rule.
func (r *SQLRepository) DeleteDomainRule(ctx context.Context, shopID string, ruleDomain string) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `DELETE FROM domain_rules WHERE shop_id = ? AND domain = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), shopID, strings.ToLower(ruleDomain))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveUTMRule upserts a merchant UTM-source rule.
func (r *SQLRepository) SaveUTMRule(ctx context.Context, shopID string, rule *domain.UTMRule) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}
	if rule.Value == "" {
		return fmt.Errorf("%w: rule value is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO utm_rules (shop_id, value, channel, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, value) DO UPDATE SET
			channel = excluded.channel,
			source = excluded.source,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		shopID, strings.ToLower(rule.Value), string(rule.Channel), string(rule.Source), now, now)
	return err
}

// ListUTMRules retrieves a shop's custom UTM rules.
func (r *SQLRepository) ListUTMRules(ctx context.Context, shopID string) ([]domain.UTMRule, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `SELECT value, channel, source FROM utm_rules WHERE shop_id = ? ORDER BY value`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.UTMRule
	for rows.Next() {
		var rule domain.UTMRule
		var channel, source string
		if err := rows.Scan(&rule.Value, &channel, &source); err != nil {
			return nil, err
		}
		rule.Channel = domain.Channel(channel)
		rule.Source = domain.RuleSource(source)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteUTMRule removes a custom UTM rule.
func (r *SQLRepository) DeleteUTMRule(ctx context.Context, shopID string, value string) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `DELETE FROM utm_rules WHERE shop_id = ? AND value = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), shopID, strings.ToLower(value))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveCustomRule upserts a CEL rule with shop isolation.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, shopID string, rule *domain.CustomRule) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO custom_rules (
			id, shop_id, name, description, expression, channel, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			channel = excluded.channel,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, shopID, rule.Name, rule.Description,
		rule.Expression, string(rule.Channel), enabled,
		createdAt, now,
	)
	return err
}

// GetCustomRule retrieves an enabled CEL rule by ID.
func (r *SQLRepository) GetCustomRule(ctx context.Context, shopID string, ruleID string) (*domain.CustomRule, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, shop_id, name, description, expression, channel, enabled, created_at, updated_at
		FROM custom_rules
		WHERE shop_id = ? AND id = ? AND enabled = 1
	`

	var rule domain.CustomRule
	var channel string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), shopID, ruleID).Scan(
		&rule.ID, &rule.ShopID, &rule.Name, &rule.Description,
		&rule.Expression, &channel, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Channel = domain.Channel(channel)
	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListCustomRules retrieves all enabled CEL rules in creation order,
// which is the order the rule engine evaluates them in.
func (r *SQLRepository) ListCustomRules(ctx context.Context, shopID string) ([]*domain.CustomRule, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, shop_id, name, description, expression, channel, enabled, created_at, updated_at
		FROM custom_rules
		WHERE shop_id = ? AND enabled = 1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var channel string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.ShopID, &rule.Name, &rule.Description,
			&rule.Expression, &channel, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Channel = domain.Channel(channel)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// DeleteCustomRule soft-deletes a CEL rule by setting enabled = 0.
func (r *SQLRepository) DeleteCustomRule(ctx context.Context, shopID string, ruleID string) error {
	if shopID == "" {
		return fmt.Errorf("%w: shopID is required", ErrInvalidInput)
	}

	query := `
		UPDATE custom_rules
		SET enabled = 0, updated_at = ?
		WHERE shop_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), shopID, ruleID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
