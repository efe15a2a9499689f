// Package billing holds the catalog side of subscriptions: billing periods
// (how long one paid term lasts and how dates advance) and plans (price,
// period, recognition settings, ledger account mapping and lifecycle
// policy).
//
// Key Aggregates:
//   - BillingPeriod: a duration (value + unit) with date arithmetic
//   - Plan: the priced offering a subscription points at
//
// Value Objects:
//   - Duration: value + unit, used both for billing and recognition intervals
//   - LifecyclePolicy: grace and suspension lengths applied by the lifecycle engine
package billing
