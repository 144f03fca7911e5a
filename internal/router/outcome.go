package router

// Outcome is the terminal state of a single delivery attempt.
type Outcome int

const (
	// OutcomeDelivered: the recipient received the message live and it
	// was appended to the conversation log.
	OutcomeDelivered Outcome = iota

	// OutcomeQueued: the recipient had no registered connection; the
	// message is held in the pending queue for the next drain.
	OutcomeQueued

	// OutcomeDroppedChannelStale: the registered connection no longer
	// accepted writes. The stale entry was evicted and the message
	// queued exactly like the offline case; nothing is lost.
	OutcomeDroppedChannelStale

	// OutcomeFailed: a store operation failed. The message is neither
	// delivered nor queued; the caller decides whether to retry or
	// report the single message as failed.
	OutcomeFailed
)

// String returns the metrics/log label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	case OutcomeDroppedChannelStale:
		return "dropped_stale"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
