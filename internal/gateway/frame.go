package gateway

import "encoding/json"

// Socket frames are JSON text messages with a STOMP-like command set.
// Clients drive CONNECT/SUBSCRIBE/UNSUBSCRIBE/DISCONNECT; the server emits
// CONNECTED, MESSAGE and ERROR.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
)

// authorizationHeader is the CONNECT header carrying the bearer credential.
const authorizationHeader = "Authorization"

// Frame is one socket protocol unit.
type Frame struct {
	Command string `json:"command"`

	// Headers carries protocol-native headers; on CONNECT this includes
	// "Authorization: Bearer <token>".
	Headers map[string]string `json:"headers,omitempty"`

	// Destination is the subscription topic for SUBSCRIBE/UNSUBSCRIBE and
	// the originating topic on MESSAGE. Matched by exact string.
	Destination string `json:"destination,omitempty"`

	// Body is the sync payload on MESSAGE frames, forwarded verbatim from
	// the bus.
	Body json.RawMessage `json:"body,omitempty"`

	// Message is human-readable detail on ERROR frames.
	Message string `json:"message,omitempty"`
}
