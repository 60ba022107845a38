package ws

// Opt is a functional option for T.
type Opt[T any] func(*T)

// ConnectionOpt configures a Connection.
type ConnectionOpt = Opt[Connection]

// Defaults applied when the matching option is absent or not positive.
const (
	DefaultMaxSubscriptions = 10
	DefaultBufferSize       = 100
	DefaultOrderbookDepth   = 10
)

// WithDialer replaces the socket dialer.
func WithDialer(d Dialer) ConnectionOpt {
	return func(c *Connection) {
		c.dialer = d
	}
}

// WithMaxSubscriptions sets the registry capacity. Values below 1 keep the
// default.
func WithMaxSubscriptions(n int) ConnectionOpt {
	return func(c *Connection) {
		if n > 0 {
			c.maxSubs = n
		}
	}
}

// WithReconnect sets the connection-wide reconnect policy.
func WithReconnect(p ReconnectPolicy) ConnectionOpt {
	return func(c *Connection) {
		c.policy = p
	}
}

// WithJitterSource makes backoff jitter deterministic.
func WithJitterSource(j JitterSource) ConnectionOpt {
	return func(c *Connection) {
		c.jitter = j
	}
}

type subscribeOptions struct {
	bufferSize int
	policy     *ReconnectPolicy
	depth      int
	auctionIDs []string
}

// SubscribeOpt configures one subscription.
type SubscribeOpt = Opt[subscribeOptions]

func newSubscribeOptions(opts []SubscribeOpt) subscribeOptions {
	o := subscribeOptions{bufferSize: DefaultBufferSize, depth: DefaultOrderbookDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}
	return o
}

// WithBufferSize bounds the number of undelivered events. When full, new
// events are dropped.
func WithBufferSize(n int) SubscribeOpt {
	return func(o *subscribeOptions) {
		o.bufferSize = n
	}
}

// WithReconnectPolicy limits how long this subscription survives a lost
// connection. It cannot extend the connection-wide policy.
func WithReconnectPolicy(p ReconnectPolicy) SubscribeOpt {
	return func(o *subscribeOptions) {
		o.policy = &p
	}
}

// WithDepth sets the number of orderbook levels per side.
func WithDepth(depth int) SubscribeOpt {
	return func(o *subscribeOptions) {
		if depth > 0 {
			o.depth = depth
		}
	}
}

// WithAuctionIDs restricts auction bid delivery to the given auctions.
func WithAuctionIDs(ids ...string) SubscribeOpt {
	return func(o *subscribeOptions) {
		o.auctionIDs = append(o.auctionIDs, ids...)
	}
}
