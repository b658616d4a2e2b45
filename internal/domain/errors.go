package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRejected          = errors.New("request rejected")
	ErrExchange          = errors.New("exchange request failed")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrMalformedHeadline = errors.New("malformed headline")
	ErrLeaseNotFound     = errors.New("lease not found")
	ErrLockHeld          = errors.New("lock already held")
)
