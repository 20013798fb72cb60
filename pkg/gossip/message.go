// Package gossip carries the sync message family consensus peers exchange
// and a minimal engine that drives the exchange over any transport backend.
package gossip

// PeerID identifies a network participant. Opaque to the transport layer.
type PeerID string

// MsgKind distinguishes the request and reply message families.
type MsgKind uint8

const (
	MsgSyncRequest MsgKind = iota + 1
	MsgSyncReply
)

func (k MsgKind) String() string {
	switch k {
	case MsgSyncRequest:
		return "sync-request"
	case MsgSyncReply:
		return "sync-reply"
	default:
		return "unknown"
	}
}

// Message is one sync exchange unit. The transport moves it as an immutable
// value; only the engine interprets it.
type Message struct {
	Kind    MsgKind `json:"kind" cbor:"1,keyasint"`
	From    PeerID  `json:"from" cbor:"2,keyasint"`
	To      PeerID  `json:"to,omitempty" cbor:"3,keyasint,omitempty"`
	Seq     uint64  `json:"seq" cbor:"4,keyasint"`
	Payload []byte  `json:"payload,omitempty" cbor:"5,keyasint,omitempty"`
}
