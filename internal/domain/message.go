package domain

import "encoding/json"

// Event names on the wire. One JSON envelope per WebSocket text message.
const (
	EventJoinSession  = "join-session"
	EventLeaveSession = "leave-session"
	EventSignal       = "signal"
	EventWelcome      = "welcome"
	EventPeerJoined   = "peer-joined"
	EventPeerLeft     = "peer-left"
	EventError        = "error"
)

// SignalKind tags a negotiation message. The relay never looks past the tag.
type SignalKind string

const (
	KindOffer        SignalKind = "offer"
	KindAnswer       SignalKind = "answer"
	KindICECandidate SignalKind = "ice-candidate"
	KindHangup       SignalKind = "hangup"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	SessionID string `json:"sessionId"`
}

// ClientSignal is the client→relay half of a negotiation exchange.
// Payload is opaque; it is forwarded byte for byte.
type ClientSignal struct {
	SessionID string          `json:"sessionId"`
	Kind      SignalKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PeerSignal is the relay→client half. From is set by the relay, never
// trusted from the sender.
type PeerSignal struct {
	From    ConnectionID    `json:"from"`
	Kind    SignalKind      `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PeerJoined struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

type PeerLeft struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

// ErrorReason values surfaced to the offending sender only.
type ErrorReason string

const (
	ReasonInvalidRequest ErrorReason = "invalid_request"
	ReasonNotAMember     ErrorReason = "not_a_member"
	ReasonSessionFull    ErrorReason = "session_full"
	ReasonRateLimited    ErrorReason = "rate_limited"
)

type ErrorNotice struct {
	Reason ErrorReason `json:"reason"`
}
