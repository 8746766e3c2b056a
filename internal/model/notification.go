package model

import "time"

// Notification is a stored webhook event received from GitHub.
//
// Everything except Processed/ProcessedAt is immutable after creation: the
// repository, event type, action, and raw payload describe what GitHub sent
// and are never rewritten. Marking a notification processed is the only
// mutation the system performs, and notifications are never deleted as part
// of normal operation.
type Notification struct {
	ID          string     `json:"id"                    db:"id"`
	UserID      string     `json:"userId"                db:"user_id"`    // owning user's internal ID
	Repository  string     `json:"repository"            db:"repository"` // full name, e.g. "owner/repo"
	EventType   string     `json:"eventType"             db:"event_type"` // e.g. "push", "pull_request"
	Action      string     `json:"action,omitempty"      db:"action"`     // e.g. "opened" (may be empty)
	Payload     Document   `json:"payload,omitempty"     db:"payload"`    // raw webhook payload
	Processed   bool       `json:"processed"             db:"processed"`
	CreatedAt   time.Time  `json:"createdAt"             db:"created_at"`
	ProcessedAt *time.Time `json:"processedAt,omitempty" db:"processed_at"`
}
