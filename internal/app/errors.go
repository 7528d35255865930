package service

import "errors"

// Sentinel kinds for service construction errors.
var (
	ErrNoStore              = errors.New("service: store is required")
	ErrUnknownStrategy      = errors.New("service: unknown purchase strategy")
	ErrMultiPathUnsupported = errors.New("service: store does not support multi-path transactions")
)

// User-visible messages shared by several operations.
const (
	msgBusy            = "Busy, try again."
	msgPurchaseFailed  = "Could not complete purchase, please try again."
	msgRenameFailed    = "Could not change username, please try again."
	msgUnauthenticated = "Sign in to play."
	msgUserNotFound    = "User not found"
	msgNotAdmin        = "Admin privileges required"
	msgUsernameTaken   = "Username already taken"
	msgUpgradeOwned    = "Upgrade already owned"
	msgCancelled       = "Request cancelled"
)
