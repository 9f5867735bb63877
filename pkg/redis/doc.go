// Package redis provides Redis connection plumbing for the flow stash:
// client construction with retry and a health check closure.
package redis
