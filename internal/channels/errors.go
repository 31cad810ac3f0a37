package channels

import "errors"

var (
	// ErrIgnoredUpdate marks a raw event that carries no message.
	ErrIgnoredUpdate = errors.New("channels: update carries no message")
	// ErrInvalidPayload marks a raw event that could not be decoded.
	ErrInvalidPayload = errors.New("channels: invalid payload")
	// ErrUnsupportedChannel is returned for unknown channel types.
	ErrUnsupportedChannel = errors.New("channels: unsupported channel")
	// ErrChannelNotConnected is returned when no active connection exists.
	ErrChannelNotConnected = errors.New("channels: channel not connected")
	// ErrChannelSendFailed wraps transport failures while sending.
	ErrChannelSendFailed = errors.New("channels: send failed")
	// ErrConnectionNotFound is returned by connection stores.
	ErrConnectionNotFound = errors.New("channels: connection not found")
)
