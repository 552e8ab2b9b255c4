package messaging

// Exchange Names
const (
	// SessionEventsExchangeName - topic exchange журнала; routing key равен ID кампании.
	SessionEventsExchangeName = "session_events_exchange"
	sessionEventsExchangeType = "topic"
)

// dedupeWindow - сколько последних ID событий помнит подписчик.
const dedupeWindow = 1024
