package messenger

import "errors"

var (
	ErrNotImplemented        = errors.New("provider operation not implemented")
	ErrDataClone             = errors.New("payload could not be cloned")
	ErrNoCounterpart         = errors.New("port has no counterpart")
	ErrPortClosed            = errors.New("port is closed")
	ErrPublishFailed         = errors.New("failed to publish message")
	ErrTransportNotConnected = errors.New("transport not connected")
)
