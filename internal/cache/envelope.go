package cache

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// envelope is the on-disk record of a FileCache entry.
//
// Wire layout (protobuf wire format, fields may appear in any order):
//
//	1: created_at  varint  unix nanoseconds
//	2: ttl         zigzag  nanoseconds, negative means no expiry
//	3: payload     bytes   length-prefixed value
type envelope struct {
	createdAt time.Time
	ttl       time.Duration
	payload   []byte
}

const (
	fieldCreatedAt protowire.Number = 1
	fieldTTL       protowire.Number = 2
	fieldPayload   protowire.Number = 3
)

func (e envelope) marshal() []byte {
	b := make([]byte, 0, len(e.payload)+24)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.createdAt.UnixNano())) //nolint:gosec // timestamps after 1970
	b = protowire.AppendTag(b, fieldTTL, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e.ttl)))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, e.payload)
	return b
}

func unmarshalEnvelope(b []byte) (envelope, error) {
	var e envelope
	var sawPayload bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
			}
			e.createdAt = time.Unix(0, int64(v)) //nolint:gosec // written by marshal
			b = b[n:]
		case num == fieldTTL && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
			}
			e.ttl = time.Duration(protowire.DecodeZigZag(v))
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
			}
			e.payload = append([]byte(nil), v...)
			sawPayload = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("%w: %w", ErrCorruptEntry, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !sawPayload {
		return e, fmt.Errorf("%w: missing payload", ErrCorruptEntry)
	}
	return e, nil
}
