package protocol

import "errors"

var (
	ErrMalformedMessage = errors.New("protocol: malformed message")
	ErrUnknownMessage   = errors.New("protocol: unknown message type")
	ErrUnknownCommand   = errors.New("protocol: unknown command")
	ErrEmptyMessage     = errors.New("protocol: empty message")
)
