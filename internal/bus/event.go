package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced. The engine uses:
//
//	conn.state            connection state transition (realtime.StateChange)
//	rt.new_message        decoded inbound message (*model.Message)
//	rt.typing             typing indicator (wire.TypingEvent)
//	rt.status_update      delivery status change (wire.StatusUpdate)
//	rt.summary_update     single conversation summary push (wire.SummaryUpdate)
//	rt.summary_snapshot   bulk summary response (wire.SummarySnapshot)
//	summary.updated       summary cache changed ([]string conversation ids)
//	thread.updated        open thread changed (string conversation id)
//	thread.send_failed    optimistic send exhausted all paths (string localId)
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
