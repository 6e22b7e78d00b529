package domain

import "time"

// SessionID names one call session. Supplied by the client (typically a
// channel or user name both parties agree on out of band).
type SessionID string

// SessionInfo is a read-only view for APIs (no transport fields).
type SessionInfo struct {
	ID          SessionID `json:"id"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
