package ws

import "context"

// Socket is one established duplex connection to the node.
type Socket interface {
	// Listen starts delivering inbound frames to h. It is called once, after
	// the owner has finished installing the socket.
	Listen(h SocketHandler)
	Send(data []byte) error
	Close() error
}

// SocketHandler receives inbound traffic. OnClose fires exactly once when the
// read loop ends, whatever the cause, including a local Close.
type SocketHandler struct {
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// Dialer opens sockets. The default implementation is gorilla based; tests
// substitute their own.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}
