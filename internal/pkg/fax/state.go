package fax

import "github.com/faxsnap/faxsnap/app/models"

// Delivery lifecycle ranks. The state machine only ever moves to a higher
// rank: pending -> sending -> delivered/failed. Stale or duplicated webhooks
// resolve to a lower-or-equal rank and are ignored.
var statusRank = map[string]int{
	models.FaxStatusPending:   0,
	models.FaxStatusSending:   1,
	models.FaxStatusDelivered: 2,
	models.FaxStatusFailed:    2,
}

// CanTransition reports whether a fax may move from one status to another.
func CanTransition(from, to string) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// priorStatuses returns every status a fax may legally hold immediately
// before moving to the given one. Used to build the conditional update that
// applies a transition atomically.
func priorStatuses(to string) []string {
	toRank, ok := statusRank[to]
	if !ok {
		return nil
	}
	var prior []string
	for status, rank := range statusRank {
		if rank < toRank {
			prior = append(prior, status)
		}
	}
	return prior
}

// StatusForEvent maps a provider event type to the target delivery status.
// The second return is false for event types that carry no lifecycle change;
// those are acknowledged and audited but never touch a fax record.
func StatusForEvent(eventType string) (string, bool) {
	switch eventType {
	case "fax.queued":
		return models.FaxStatusPending, true
	case "fax.sending", "fax.media.processed":
		return models.FaxStatusSending, true
	case "fax.delivered":
		return models.FaxStatusDelivered, true
	case "fax.failed":
		return models.FaxStatusFailed, true
	default:
		return "", false
	}
}

// StatusFromAcceptance maps the provider's synchronous send response status
// onto the initial record status.
func StatusFromAcceptance(providerStatus string) string {
	switch providerStatus {
	case "sending", "media.processed":
		return models.FaxStatusSending
	default:
		return models.FaxStatusPending
	}
}
