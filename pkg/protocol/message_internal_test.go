package protocol

import (
	"bytes"
	"testing"
)

func TestMessage_EncodeWireLayout(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []byte
	}{
		{
			name: "text message",
			msg:  Message{Type: MessageTypeText, Sender: "u1", Content: "Hi"},
			want: []byte{0x08, 0x01, 0x12, 0x02, 'u', '1', 0x1a, 0x02, 'H', 'i'},
		},
		{
			name: "join message omits empty content",
			msg:  Message{Type: MessageTypeJoin, Sender: "u2"},
			want: []byte{0x08, 0x02, 0x12, 0x02, 'u', '2'},
		},
		{
			name: "leave message without sender",
			msg:  Message{Type: MessageTypeLeave},
			want: []byte{0x08, 0x03},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestMessageTypeWireConversion(t *testing.T) {
	tests := []struct {
		name string
		mt   MessageType
		wire uint64
	}{
		{"text", MessageTypeText, wireTypeText},
		{"join", MessageTypeJoin, wireTypeJoin},
		{"leave", MessageTypeLeave, wireTypeLeave},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageTypeToWire(tt.mt); got != tt.wire {
				t.Errorf("messageTypeToWire() = %v, want %v", got, tt.wire)
			}
			if got := messageTypeFromWire(tt.wire); got != tt.mt {
				t.Errorf("messageTypeFromWire() = %v, want %v", got, tt.mt)
			}
		})
	}

	t.Run("unknown type falls back to text", func(t *testing.T) {
		if got := messageTypeToWire(MessageType(99)); got != wireTypeText {
			t.Errorf("messageTypeToWire(99) = %v, want %v", got, wireTypeText)
		}
	})

	t.Run("unspecified decodes as text", func(t *testing.T) {
		if got := messageTypeFromWire(wireTypeUnspecified); got != MessageTypeText {
			t.Errorf("messageTypeFromWire(0) = %v, want TEXT", got)
		}
	})
}
