package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for checkpoint payloads as they
// cross the store boundary.
type Codec interface {
	// Encode serializes a payload to bytes.
	Encode(p Payload) ([]byte, error)

	// Decode deserializes bytes into a payload.
	Decode(data []byte) (Payload, error)

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// CodecName constants for store configuration.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	case CodecNameJSON, "":
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec encodes payloads as JSON. This is the default: payloads stay
// inspectable in the database at the cost of size.
type JSONCodec struct{}

func (c *JSONCodec) Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func (c *JSONCodec) Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("checkpoint: decode json payload: %w", err)
	}
	return p, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes payloads as MessagePack, for deployments where
// checkpoint volume matters more than inspectability.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(p Payload) ([]byte, error) {
	return msgpack.Marshal(p)
}

func (c *MsgpackCodec) Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nil
	}
	var p Payload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("checkpoint: decode msgpack payload: %w", err)
	}
	return p, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
