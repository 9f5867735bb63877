// Package pg provides PostgreSQL connection plumbing for the profile store:
// pool construction with retry, a health check closure, goose-driven schema
// migrations routed through the application logger, and error predicates for
// the constraint violations the profile gateway relies on.
package pg
