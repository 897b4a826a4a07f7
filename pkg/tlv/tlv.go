// Package tlv provides access helpers for BER-TLV (Basic Encoding Rules -
// Tag-Length-Value) encoded data on top of the moov-io/bertlv codec.
//
// Two access patterns are offered:
//  1. FindTag: locate the first value for a given tag in a buffer, the way
//     card metadata templates (FCP, key-directory records) are picked apart.
//  2. Objects: walk the top-level data objects of a buffer in order, the way
//     an access-rule record is interpreted as a sequence of security DOs.
package tlv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moov-io/bertlv"
)

// ErrTagNotFound is returned by FindTag when the buffer holds no data object
// with the requested tag.
var ErrTagNotFound = fmt.Errorf("tag not found")

// Object is a single decoded data object. Tag carries the full tag number
// including its class and constructed bits (e.g. 0xA4, 0x9F12).
type Object struct {
	Tag   uint
	Value []byte
}

// FindTag scans the top-level data objects of data and returns the raw value
// of the first object with the given tag. For constructed objects the value
// is the re-encoded content, matching what a byte-oriented caller expects.
func FindTag(data []byte, tag uint) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	want := fmt.Sprintf("%X", tag)
	for _, p := range packets {
		if strings.EqualFold(p.Tag, want) {
			return rawValue(p), nil
		}
	}
	return nil, ErrTagNotFound
}

// Objects decodes the top-level data objects of data, preserving order.
func Objects(data []byte) ([]Object, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bertlv decode failed: %w", err)
	}

	objs := make([]Object, 0, len(packets))
	for _, p := range packets {
		tag, err := strconv.ParseUint(p.Tag, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed tag %q: %w", p.Tag, err)
		}
		objs = append(objs, Object{Tag: uint(tag), Value: rawValue(p)})
	}
	return objs, nil
}

// rawValue flattens a packet back to its value octets. bertlv recurses into
// constructed objects, so those have to be re-encoded.
func rawValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}
