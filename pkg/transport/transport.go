// Package transport defines the connection-handle boundary between the
// delivery core and whatever carries bytes to a client (the websocket gateway
// in production, recording fakes in tests).
package transport

import "github.com/mahaj/chatstra/pkg/model"

// Handle is one live client connection. A user may own several at once
// (multi-device); the session registry tracks them by Key.
type Handle interface {
	// Key uniquely identifies this connection for the lifetime of the process.
	Key() string
	// Emit sends one event to the client. Emit must not block indefinitely;
	// implementations drop and report an error when the client cannot keep up.
	Emit(event model.EventType, payload any) error
}
