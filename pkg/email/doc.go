// Package email delivers transactional auth emails (one-time verification
// codes, password reset notices) through a provider-agnostic Sender
// interface. A Postmark-backed sender covers production; DevSender writes
// messages to disk for local development so flows can be exercised without
// provider credentials.
package email
