package iso7816

import (
	"bytes"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according
// to ISO/IEC 7816-3 and 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// RESPONSE APDU (R-APDU):
// An optional data field followed by the mandatory two-byte trailer SW1/SW2.

// APDU limits according to ISO 7816-3.
const (
	// MaxShortLc is the maximum data length (Nc) encodable in Short Length mode (1 byte).
	MaxShortLc = 255

	// MaxShortLe is the maximum expected response length (Ne) encodable in Short
	// Length mode. In Short mode, 0x00 encodes 256.
	MaxShortLe = 256
)

// Instruction is a typed representation of the INS byte.
type Instruction byte

// Instruction (INS) codes issued by this module, as defined in ISO/IEC 7816-4.
const (
	InsVerify               Instruction = 0x20
	InsManageSecurityEnv    Instruction = 0x22
	InsPerformSecurityOp    Instruction = 0x2A
	InsExternalAuthenticate Instruction = 0x82
	InsInternalAuthenticate Instruction = 0x88
	InsSelect               Instruction = 0xA4
	InsReadBinary           Instruction = 0xB0
	InsReadRecord           Instruction = 0xB2
	InsGetResponse          Instruction = 0xC0
)

func (i Instruction) String() string {
	switch i {
	case InsVerify:
		return "VERIFY"
	case InsManageSecurityEnv:
		return "MANAGE SECURITY ENVIRONMENT"
	case InsPerformSecurityOp:
		return "PERFORM SECURITY OPERATION"
	case InsExternalAuthenticate:
		return "EXTERNAL AUTHENTICATE"
	case InsInternalAuthenticate:
		return "INTERNAL AUTHENTICATE"
	case InsSelect:
		return "SELECT"
	case InsReadBinary:
		return "READ BINARY"
	case InsReadRecord:
		return "READ RECORD"
	case InsGetResponse:
		return "GET RESPONSE"
	default:
		return fmt.Sprintf("INS 0x%02X", byte(i))
	}
}

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Cla    byte
	Ins    Instruction
	P1, P2 byte
	Data   []byte
	Ne     int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla byte, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
		Ne:   ne,
	}
}

// Bytes encodes the CommandAPDU into its short-form byte representation.
// Short length encoding covers everything this card family speaks; lengths
// beyond the short limits are rejected.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	if nc > MaxShortLc {
		return nil, fmt.Errorf("data field of %d bytes exceeds short Lc limit", nc)
	}
	if c.Ne > MaxShortLe || c.Ne < 0 {
		return nil, fmt.Errorf("expected length %d outside short Le range", c.Ne)
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(c.Cla)
	buf.WriteByte(byte(c.Ins))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	// Case 3/4: Lc + Data
	if nc > 0 {
		buf.WriteByte(byte(nc))
		buf.Write(c.Data)
	}

	// Case 2/4: Le. 0x00 encodes 256.
	if c.Ne > 0 {
		if c.Ne == MaxShortLe {
			buf.WriteByte(0x00)
		} else {
			buf.WriteByte(byte(c.Ne))
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Ins, c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU parses raw bytes received from the card into a ResponseAPDU.
// The input must contain at least 2 bytes (SW1, SW2).
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("response too short: length %d", len(raw))
	}

	indexSW1 := len(raw) - 2
	data := raw[:indexSW1]
	sw1 := raw[indexSW1]
	sw2 := raw[indexSW1+1]

	return &ResponseAPDU{
		Data:   data,
		Status: NewStatusWord(sw1, sw2),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}
