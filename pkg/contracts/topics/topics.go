package topics

const (
	// Ciclo de vida das apostas
	BetEvents = "bet_events"

	// DLQs
	BetEventsDLQ = "bet_events_dlq"
)

// Canal Redis Pub/Sub consumido pelo ws do escrow-service
const BetUpdatesBroadcast = "bet_updates_broadcast"
