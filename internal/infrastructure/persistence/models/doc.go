// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: Base persistence models (BaseModel, AggregateModel)
// - sales.go: Contracts, lots, financial templates and zone financing rules
// - finance.go: Payment schedules, receivables, payments, journal entries, accounts and counters
// - outbox.go: Outbox pattern model for event delivery
package models
