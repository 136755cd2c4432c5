package apperrors

import "errors"

// Standardized broker and feed errors
var (
	ErrSubscriptionFailed  = errors.New("subscription failed")
	ErrOrderRejected       = errors.New("order rejected")
	ErrInsufficientMargin  = errors.New("insufficient margin")
	ErrNoQuote             = errors.New("no quote for symbol")
	ErrNoPosition          = errors.New("no position set")
	ErrIllegalTransition   = errors.New("illegal position state transition")
	ErrUnavailable         = errors.New("value not yet available")
	ErrFeedClosed          = errors.New("feed session closed")
	ErrIncompleteCondor    = errors.New("iron condor requires four resolved legs")
	ErrNoCandidate         = errors.New("no strike met the threshold this cycle")
	ErrPositionImmutable   = errors.New("position is frozen after submission")
	ErrAuthenticationError = errors.New("authentication failed")
)
