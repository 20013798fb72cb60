// Package codec provides the message codecs transports use to move typed
// values across the wire. A backend is handed one Codec at construction and
// never interprets message contents beyond it.
package codec

// Codec marshals typed messages. Implementations should be deterministic
// and safe for cross-node exchange.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content type aliases to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the built-in codecs that
// need no initialization: JSON and Protobuf. CBOR can be added explicitly
// via Register.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	return r
}

// Register adds a codec.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }
