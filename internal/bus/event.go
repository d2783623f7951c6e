package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The prefix before the first dot is the namespace
// subscribers filter on.
const (
	ViewUpdated = "view.updated"

	CursorAdvanced = "cursor.advanced"

	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	ChannelStateChanged = "channel.state_changed"
	ChannelDegraded     = "channel.degraded"

	BackfillPage   = "sync.backfill_page"
	BackfillDone   = "sync.backfill_done"
	BackfillFailed = "sync.backfill_failed"
)
