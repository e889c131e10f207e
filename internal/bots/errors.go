package bots

import "errors"

var (
	// ErrAlreadyConnected is returned by Connect when a live connection (or
	// an in-flight dial) already exists for the requested bot id.
	ErrAlreadyConnected = errors.New("bot already connected")

	// ErrConfigNotFound is returned by Reconnect when no stored config
	// exists for the bot id (never connected, or permanently removed).
	ErrConfigNotFound = errors.New("bot config not found")
)
