package monitor

// Shorthands over GetMetrics for call sites that only touch one collector.

func SetConnectionState(state int, connected bool) {
	GetMetrics().SetConnectionState(state, connected)
}

func IncReconnectAttempts() {
	GetMetrics().IncReconnectAttempts()
}

func IncReconnectExhausted() {
	GetMetrics().IncReconnectExhausted()
}

func SetSubscriptionsActive(n int) {
	GetMetrics().SetSubscriptionsActive(n)
}

func IncMessagesReceived(msgType string) {
	GetMetrics().IncMessagesReceived(msgType)
}

func IncEventsBuffered(channel string) {
	GetMetrics().IncEventsBuffered(channel)
}

func IncEventsDropped(channel string) {
	GetMetrics().IncEventsDropped(channel)
}

func IncDecodeErrors(channel string) {
	GetMetrics().IncDecodeErrors(channel)
}

func IncServerErrors() {
	GetMetrics().IncServerErrors()
}

func IncEventsPublished(channel string) {
	GetMetrics().IncEventsPublished(channel)
}

func IncPublishErrors(channel string) {
	GetMetrics().IncPublishErrors(channel)
}

func IncDedupHits(channel string) {
	GetMetrics().IncDedupHits(channel)
}

func ObserveBatchWrite(size int, seconds float64) {
	GetMetrics().ObserveBatchWrite(size, seconds)
}

func AddArchiveRowsDeleted(n int64) {
	GetMetrics().AddArchiveRowsDeleted(n)
}
