// Package internal holds the RSVP server internals.
//
// - api: routing, handlers, middleware and the OpenAPI document
// - domain: events, registrations, users and input validation
// - storage: PostgreSQL repositories and schema migrations
// - jobs: River workers for notifications and the capacity audit
// - auth, audit, config, email, metrics, sanitize, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
