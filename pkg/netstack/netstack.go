// Package netstack maps transport configuration onto concrete backend
// constructors. It is the only place that knows every backend; callers get
// back the generic Sender/Receiver contracts and nothing else.
package netstack

import (
	"fmt"
	"time"

	"github.com/Fantom-foundation/libtransport/pkg/codec"
	"github.com/Fantom-foundation/libtransport/pkg/config"
	"github.com/Fantom-foundation/libtransport/pkg/transport"
	thttp "github.com/Fantom-foundation/libtransport/pkg/transport/http"
	"github.com/Fantom-foundation/libtransport/pkg/transport/mem"
	tquic "github.com/Fantom-foundation/libtransport/pkg/transport/quic"
	ttcp "github.com/Fantom-foundation/libtransport/pkg/transport/tcp"
	"github.com/Fantom-foundation/libtransport/pkg/transport/udp"
)

// NewSender constructs the sender for the configured kind. An unknown kind
// is a configuration error surfaced here, at startup, never at send time.
func NewSender[M any](tc config.TransportConfig) (transport.Sender[M], error) {
	cdc, err := CodecFor(tc.Codec)
	if err != nil {
		return nil, err
	}
	dial := time.Duration(tc.DialTimeoutMS) * time.Millisecond
	write := time.Duration(tc.WriteTimeoutMS) * time.Millisecond
	switch kind := transport.ParseKind(tc.Kind); kind {
	case transport.KindTCP:
		return ttcp.NewSender[M](ttcp.Options{Codec: cdc, DialTimeout: dial, WriteTimeout: write})
	case transport.KindHTTP:
		return thttp.NewSender[M](thttp.Options{Codec: cdc, RequestTimeout: write})
	case transport.KindQUIC:
		return tquic.NewSender[M](tquic.Options{Codec: cdc, DialTimeout: dial, WriteTimeout: write})
	case transport.KindUDP:
		return udp.NewSender[M](udp.Options{Codec: cdc, WriteTimeout: write})
	case transport.KindMem:
		return mem.NewSender[M](mem.Options{Codec: cdc})
	default:
		return nil, errUnknownKind(tc.Kind)
	}
}

// NewReceiver constructs the receiver for the configured kind, bound to the
// configured address.
func NewReceiver[M any](tc config.TransportConfig) (transport.Receiver[M], error) {
	cdc, err := CodecFor(tc.Codec)
	if err != nil {
		return nil, err
	}
	write := time.Duration(tc.WriteTimeoutMS) * time.Millisecond
	switch kind := transport.ParseKind(tc.Kind); kind {
	case transport.KindTCP:
		return ttcp.NewReceiver[M](tc.Bind, ttcp.Options{Codec: cdc, WriteTimeout: write})
	case transport.KindHTTP:
		return thttp.NewReceiver[M](tc.Bind, thttp.Options{Codec: cdc, RequestTimeout: write})
	case transport.KindQUIC:
		return tquic.NewReceiver[M](tc.Bind, tquic.Options{Codec: cdc, WriteTimeout: write})
	case transport.KindUDP:
		return udp.NewReceiver[M](tc.Bind, udp.Options{Codec: cdc, WriteTimeout: write})
	case transport.KindMem:
		return mem.NewReceiver[M](tc.Bind, mem.Options{Codec: cdc})
	default:
		return nil, errUnknownKind(tc.Kind)
	}
}

// CodecFor resolves a configuration codec name.
func CodecFor(name string) (codec.Codec, error) {
	switch name {
	case "", "cbor":
		return codec.CBOR()
	case "json":
		return codec.JSON(), nil
	case "proto", "protobuf":
		return codec.Proto(), nil
	default:
		return nil, transport.Errf(transport.ClassConfig, "codec", "",
			fmt.Errorf("unknown codec %q", name))
	}
}

func errUnknownKind(kind string) error {
	return transport.Errf(transport.ClassConfig, "select", "",
		fmt.Errorf("unknown transport kind %q", kind))
}
