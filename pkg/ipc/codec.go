package ipc

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Version is the protocol version stamped on every envelope.
const Version = 1

// envelope frames one message on the wire.
type envelope struct {
	Type Type            `cbor:"type"`
	Body cbor.RawMessage `cbor:"body"`
	V    int             `cbor:"v"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("ipc: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Log meta and error details are decoded into map[string]any.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Integers keep one type whatever their sign.
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("ipc: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a message into a single framed envelope.
func Marshal(m Message) ([]byte, error) {
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{V: Version, Type: m.Type(), Body: body})
}

// Unmarshal decodes a framed envelope produced by Marshal.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return open(env)
}

func open(env envelope) (Message, error) {
	if env.V != Version {
		return nil, ErrUnsupportedVersion
	}
	m, ok := newMessage(env.Type)
	if !ok {
		return nil, ErrUnknownType
	}
	if err := decMode.Unmarshal(env.Body, m); err != nil {
		return nil, err
	}
	return m, nil
}
