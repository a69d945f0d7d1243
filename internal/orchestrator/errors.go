package orchestrator

import "errors"

var (
	// ErrCapacityExhausted means no automation slot is free; the caller
	// should try again later, nothing failed
	ErrCapacityExhausted = errors.New("automation capacity exhausted, try again later")

	// ErrNotFound covers unknown accounts and unmatched provider domains
	ErrNotFound = errors.New("account not found")

	// ErrInvalidState rejects an operation the account's status does not
	// allow, e.g. retrying an account that has not failed
	ErrInvalidState = errors.New("account is not in a valid state for this operation")

	// ErrNoProviders means no mailbox provider is configured
	ErrNoProviders = errors.New("no mailbox providers configured")
)
