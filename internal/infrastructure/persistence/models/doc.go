// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel and AggregateModel (id, timestamps, version)
//   - catalog.go: billing periods and plans
//   - subscription.go: subscriptions and plan change audit records
//   - revenue.go: revenue schedules and recognition lines
//   - renewal.go: renewal events
//   - processing.go: failure queue entries and job run history
package models
