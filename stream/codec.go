package stream

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes messages for the wire.
type Codec interface {
	// Encode serializes a message to bytes.
	Encode(msg *Message) ([]byte, error)

	// Decode deserializes bytes into a message.
	Decode(data []byte) (*Message, error)

	// Name returns the codec identifier used in negotiation.
	Name() string
}

// Codec names accepted by CodecFor.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// CodecFor returns the codec registered under name. Unknown and empty
// names get JSON.
func CodecFor(name string) Codec {
	if name == CodecNameMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec encodes messages as JSON text.
type JSONCodec struct{}

func (JSONCodec) Encode(msg *Message) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes messages as MessagePack binary.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(msg *Message) ([]byte, error) { return msgpack.Marshal(msg) }

func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
