package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Host is the discovery identity record exchanged once per substream
// direction. Field numbers match the wire schema in §6: hostname = 1 (string),
// os = 2 (int32 enum).
type Host struct {
	Hostname string
	OS       OS
}

// Marshal encodes Host as a protobuf message, hand-rolled with protowire
// since the schema is tiny and fixed; no .proto/protoc step is needed.
func (h Host) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, h.Hostname)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int32(h.OS)))
	return b
}

// UnmarshalHost decodes a Host record. Unknown fields are skipped so that
// future additions do not break older peers.
func UnmarshalHost(data []byte) (h Host, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return h, fmt.Errorf("protocol: malformed Host tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return h, fmt.Errorf("protocol: malformed Host.hostname: %w", protowire.ParseError(n))
			}
			h.Hostname = v
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return h, fmt.Errorf("protocol: malformed Host.os: %w", protowire.ParseError(n))
			}
			h.OS = OS(int32(v))
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return h, fmt.Errorf("protocol: malformed Host field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return h, nil
}

// Metadata is the first fixed-size packet of a transfer substream,
// naming and hashing the payload. Field numbers: name = 1 (string),
// hash = 2 (string, lowercase hex MD5), size = 3 (uint64), type = 4 (int32 enum).
type Metadata struct {
	Name string
	Hash string
	Size uint64
	Type TransferType
}

// Marshal encodes Metadata and zero-pads the result to MetadataPacketSize.
// Fields holding their zero value are omitted, as protobuf does, so the
// encoded message never ends in a 0x00 byte that UnmarshalMetadata would
// strip along with the padding. It returns an error if the encoded message,
// before padding, exceeds that budget - a name long enough to overflow 1024
// bytes is a caller bug, not a transport condition to recover from silently.
func (m Metadata) Marshal() ([]byte, error) {
	var b []byte
	if m.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	if m.Hash != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Hash)
	}
	if m.Size != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Size)
	}
	if m.Type != TransferFile {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int32(m.Type)))
	}

	if len(b) > MetadataPacketSize {
		return nil, fmt.Errorf("protocol: encoded metadata %d bytes exceeds packet size %d", len(b), MetadataPacketSize)
	}

	padded := make([]byte, MetadataPacketSize)
	copy(padded, b)
	return padded, nil
}

// UnmarshalMetadata decodes a Metadata packet. Trailing NUL padding, per §6,
// must be stripped before decoding; this function does that itself so
// callers can pass the raw 1024-byte packet straight from the socket.
func UnmarshalMetadata(packet []byte) (m Metadata, err error) {
	data := stripTrailingZeros(packet)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("protocol: malformed Metadata tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return m, fmt.Errorf("protocol: malformed Metadata.name: %w", protowire.ParseError(n))
			}
			m.Name = v
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return m, fmt.Errorf("protocol: malformed Metadata.hash: %w", protowire.ParseError(n))
			}
			m.Hash = v
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, fmt.Errorf("protocol: malformed Metadata.size: %w", protowire.ParseError(n))
			}
			m.Size = v
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, fmt.Errorf("protocol: malformed Metadata.type: %w", protowire.ParseError(n))
			}
			m.Type = TransferType(int32(v))
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, fmt.Errorf("protocol: malformed Metadata field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

// Answer is the receiver's accept/deny reply. On the wire it is a protobuf
// message read with an exact-size read of AnswerPacketSize bytes (§6);
// only the accepted field fits in that packet, so Marshal does not write
// Hash and an Answer read from the wire has an empty Hash. Correlation
// relies on there being exactly one outstanding offer per substream (§4.3).
type Answer struct {
	Accepted bool
	Hash     string
}

// Marshal encodes Answer into exactly AnswerPacketSize bytes. Only Accepted
// is encoded; Hash is not written. UnmarshalAnswer still decodes a hash
// field (number 2) if a packet carries one.
func (a Answer) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	if a.Accepted {
		b = protowire.AppendVarint(b, 1)
	} else {
		b = protowire.AppendVarint(b, 0)
	}

	out := make([]byte, AnswerPacketSize)
	copy(out, b)
	return out
}

// UnmarshalAnswer decodes an Answer packet.
func UnmarshalAnswer(packet []byte) (a Answer, err error) {
	data := packet
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			break // reached the zero padding region of a truncated packet
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return a, fmt.Errorf("protocol: malformed Answer.accepted: %w", protowire.ParseError(n))
			}
			a.Accepted = v != 0
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return a, fmt.Errorf("protocol: malformed Answer.hash: %w", protowire.ParseError(n))
			}
			a.Hash = v
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				break
			}
			data = data[n:]
		}
	}
	return a, nil
}

func stripTrailingZeros(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}
