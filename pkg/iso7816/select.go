package iso7816

import (
	"fmt"
)

// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') makes a file (MF, DF, or EF) or an
// application "current" for subsequent operations.
//
// P1 (Selection Method):
// Indicates how the file is targeted. MICARDO-generation cards only support
// flat, single-level addressing: a file identifier is resolved relative to
// the currently selected directory, so a hierarchical path has to be walked
// one SELECT at a time by the caller.
//
// P2 (Selection Control):
// Controls response content and file occurrence. This module always requests
// the first/only occurrence; response content is FCI or nothing.

// SelectKind defines how the single-level SELECT targets its file (P1).
type SelectKind byte

const (
	// SelectMF selects the master file (root directory).
	SelectMF SelectKind = 0x00
	// SelectChildDF selects a directory subordinate to the current one.
	SelectChildDF SelectKind = 0x01
	// SelectChildEF selects a data file of the current directory.
	SelectChildEF SelectKind = 0x02
	// SelectByName selects an application by DF name (AID).
	SelectByName SelectKind = 0x04
)

func (k SelectKind) String() string {
	switch k {
	case SelectMF:
		return "Select MF"
	case SelectChildDF:
		return "Select Child DF"
	case SelectChildEF:
		return "Select Child EF"
	case SelectByName:
		return "Select by DF Name (AID)"
	default:
		return fmt.Sprintf("Unknown Kind (0x%02X)", byte(k))
	}
}

// NewSelect creates a single-level SELECT for a two-byte file identifier.
// When want is true the card is asked to return file control information;
// otherwise the response data is suppressed (P2 '0C', No Data).
//
// T=0 Protocol Compatibility: a Case 3 command (data present) must not carry
// Le. The card answers '61 XX' when FCI is available and the Client fetches
// it with GET RESPONSE.
func NewSelect(cla byte, kind SelectKind, fid uint16, want bool) *CommandAPDU {
	p2 := byte(0x0C) // No response data
	if want {
		p2 = 0x00 // Return FCI
	}
	data := []byte{byte(fid >> 8), byte(fid)}
	return NewCommandAPDU(cla, InsSelect, byte(kind), p2, data, 0)
}

// NewSelectByName creates a SELECT by DF name (AID), up to 16 bytes.
func NewSelectByName(cla byte, name []byte, want bool) *CommandAPDU {
	p2 := byte(0x0C)
	if want {
		p2 = 0x00
	}
	return NewCommandAPDU(cla, InsSelect, byte(SelectByName), p2, name, 0)
}
