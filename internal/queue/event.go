// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// ItemEvent is published whenever a lease transition or administrative
// mutation completes.  It carries enough information for downstream
// consumers to log or notify without querying the primary database.  The
// claim token itself is never part of an event.
type ItemEvent struct {
	Kind       string `json:"kind"` // created | updated | deleted | claimed | released | reclaimed
	ItemID     string `json:"item_id"`
	Title      string `json:"title,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"` // RFC3339, claims only
	OccurredAt string `json:"occurred_at"`          // RFC3339
}

// Event kinds.
const (
	KindCreated   = "created"
	KindUpdated   = "updated"
	KindDeleted   = "deleted"
	KindClaimed   = "claimed"
	KindReleased  = "released"
	KindReclaimed = "reclaimed"
)
