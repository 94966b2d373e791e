package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaOrders = `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT NOT NULL,
    shop_id TEXT NOT NULL,
    name TEXT NOT NULL,
    currency TEXT NOT NULL,
    total_price REAL NOT NULL,
    subtotal_price REAL,
    refunded_total REAL NOT NULL DEFAULT 0,
    referring_site TEXT,
    landing_site TEXT,
    utm_source TEXT,
    utm_medium TEXT,
    source_channel TEXT,
    tags TEXT,
    note_attributes TEXT,
    customer_id TEXT,
    new_customer INTEGER NOT NULL DEFAULT 0,
    line_items TEXT,
    created_at TIMESTAMP NOT NULL,
    ingested_at TIMESTAMP NOT NULL,
    channel TEXT,
    detection_note TEXT,
    signals TEXT,
    PRIMARY KEY (shop_id, id)
);

CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(shop_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(shop_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_orders_channel ON orders(shop_id, channel);
`

const schemaDomainRules = `
CREATE TABLE IF NOT EXISTS domain_rules (
    shop_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    channel TEXT NOT NULL,
    source TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (shop_id, domain)
);
`

const schemaUTMRules = `
CREATE TABLE IF NOT EXISTS utm_rules (
    shop_id TEXT NOT NULL,
    value TEXT NOT NULL,
    channel TEXT NOT NULL,
    source TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (shop_id, value)
);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    shop_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    channel TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (shop_id, id)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(shop_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaOrders,
		schemaDomainRules,
		schemaUTMRules,
		schemaCustomRules,
	}
}
