package ws

import "errors"

var (
	ErrSubscriptionLimit  = errors.New("ws: subscription limit reached")
	ErrConnectionFailed   = errors.New("ws: connection failed")
	ErrReconnectExhausted = errors.New("ws: reconnect attempts exhausted")
	ErrDecode             = errors.New("ws: decode failed")
	ErrServer             = errors.New("ws: server error")
	ErrNotConnected       = errors.New("ws: not connected")
	ErrConnectAborted     = errors.New("ws: connect aborted")
	ErrInvalidParams      = errors.New("ws: invalid subscription params")
)
