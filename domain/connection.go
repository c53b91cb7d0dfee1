package domain

import "time"

type ConnID string

func (c ConnID) String() string { return string(c) }

// Connection is the identity attached to a socket once, before any event is read.
// It is a value: nothing mutates it after the handshake.
type Connection struct {
	ID          ConnID
	UserID      UserID
	DisplayName string
	RemoteAddr  string
	ConnectedAt time.Time
}

// Typist is the user shape carried by typing events.
type Typist struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

func (c Connection) Typist() Typist {
	return Typist{ID: c.UserID, DisplayName: c.DisplayName}
}
