// Package domain contains entity types without logic, just meta-data.
package domain

import "github.com/google/uuid"

// ConnectionID identifies one live transport link. Assigned by the relay
// on handshake, never taken from the client.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
