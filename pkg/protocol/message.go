// Package protocol implements the chat payload carried over a supervised
// WebSocket. Messages are encoded in the protobuf wire format described by
// proto/message.proto.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeJoin
	MessageTypeLeave
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeJoin:
		return "JOIN"
	case MessageTypeLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Message represents a chat message
type Message struct {
	Type    MessageType
	Sender  string
	Content string
}

// Field numbers of proto/message.proto.
const (
	fieldType    protowire.Number = 1
	fieldSender  protowire.Number = 2
	fieldContent protowire.Number = 3
)

// Enum values of proto/message.proto.
const (
	wireTypeUnspecified uint64 = iota
	wireTypeText
	wireTypeJoin
	wireTypeLeave
)

var errWrongWireType = errors.New("unexpected wire type")

// Encode encodes the message into bytes using the protobuf wire format
func (m *Message) Encode() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, messageTypeToWire(m.Type))
	if m.Sender != "" {
		b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
		b = protowire.AppendString(b, m.Sender)
	}
	if m.Content != "" {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendString(b, m.Content)
	}
	return b, nil
}

// Decode decodes bytes into a message. Unknown fields are skipped.
func (m *Message) Decode(data []byte) error {
	var decoded Message
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("failed to decode message: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("failed to decode message type: %w", protowire.ParseError(n))
			}
			decoded.Type = messageTypeFromWire(v)
			data = data[n:]
		case num == fieldSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode sender: %w", protowire.ParseError(n))
			}
			decoded.Sender = v
			data = data[n:]
		case num == fieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode content: %w", protowire.ParseError(n))
			}
			decoded.Content = v
			data = data[n:]
		case num == fieldType || num == fieldSender || num == fieldContent:
			return fmt.Errorf("failed to decode field %d: %w", num, errWrongWireType)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	*m = decoded
	return nil
}

// messageTypeToWire converts MessageType to the wire enum.
// Unknown types are sent as TEXT.
func messageTypeToWire(mt MessageType) uint64 {
	switch mt {
	case MessageTypeText:
		return wireTypeText
	case MessageTypeJoin:
		return wireTypeJoin
	case MessageTypeLeave:
		return wireTypeLeave
	default:
		return wireTypeText
	}
}

// messageTypeFromWire converts the wire enum to MessageType.
// Unknown and unspecified values decode as TEXT.
func messageTypeFromWire(v uint64) MessageType {
	switch v {
	case wireTypeJoin:
		return MessageTypeJoin
	case wireTypeLeave:
		return MessageTypeLeave
	default:
		return MessageTypeText
	}
}
