// Package peer implements the co-op transport: an HTTP push protocol
// between one host and its connected clients. The engine treats payloads as
// opaque; this package only moves bytes and tracks session membership.
package peer

// ProtoHeader carries the protocol version on every savewatch request.
const ProtoHeader = "X-Savewatch-Proto"

// ProtoVersion is the current wire protocol version.
const ProtoVersion = "1"

// MessageSink receives pushed payloads and session-state changes.
// Implemented by coop.Adapter.
type MessageSink interface {
	OnPeerMessage(payload []byte) (bool, error)
	SetConnected(connected bool)
}
