package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and local tooling. Production schema is owned by goose migrations.
func All() []any {
	return []any{
		&Product{},
		&PriceHistory{},
		&Order{},
		&OrderItem{},
		&Refund{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
