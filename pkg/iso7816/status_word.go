package iso7816

import (
	"fmt"

	"github.com/rliebscher/OpenSC/pkg/bits"
)

// Dynamic Status Word Logic:
//
// While most Status Words (SW) are static 2-byte values (e.g., 0x9000),
// ISO 7816-4 defines ranges where the value is dynamic and carries context:
//
// 1. '61XX' (SW1=0x61): Process Completed, Response Available.
//    XX indicates the number of extra bytes available for retrieval (GET RESPONSE).
//
// 2. '6CXX' (SW1=0x6C): Wrong Length.
//    XX indicates the correct expected length (Le) for the command.
//
// 3. '63CX' (Warning): Counter Management.
//    If the upper nibble of SW2 is 'C' (0xC0-0xCF), the lower nibble represents
//    a counter value (e.g., remaining PIN retries).

// StatusWord represents the two-byte status response (SW1-SW2) returned by the smart card.
type StatusWord uint16

// NewStatusWord creates a StatusWord instance from two separate bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the first byte (high byte) of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the second byte (low byte) of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsSuccess returns true if the command was processed successfully (9000) or
// if data is available (61XX).
func (sw StatusWord) IsSuccess() bool {
	return sw == SWNoError || sw.SW1() == 0x61
}

// IsWarning returns true if the status indicates a warning (62XX or 63XX).
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true if the status indicates an execution or checking
// error (64XX to 6FXX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// IsCounter checks if the status carries a retry counter (63CX).
func (sw StatusWord) IsCounter() bool {
	if sw.SW1() != 0x63 {
		return false
	}
	return bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// Counter returns the counter value of a 63CX status, or -1.
func (sw StatusWord) Counter() int {
	if !sw.IsCounter() {
		return -1
	}
	return int(bits.GetRange(sw.SW2(), 4, 1))
}

// Verbose returns a human-readable description of the status word.
// Dynamic ISO ranges take precedence over the static code table.
func (sw StatusWord) Verbose() string {
	sw1 := sw.SW1()
	sw2 := sw.SW2()

	if sw1 == 0x61 {
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	}
	if sw1 == 0x6C {
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}
	if sw.IsCounter() {
		return fmt.Sprintf("Warning: state changed, counter = %d", sw.Counter())
	}

	if desc, ok := swDescriptions[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), desc)
	}
	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

// genericCategoryDescription provides a fallback description based on SW1.
func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Status Word codes this module distinguishes, as defined in ISO/IEC 7816-4.
const (
	SWNoError StatusWord = 0x9000

	SWWarnEOFReached      StatusWord = 0x6282
	SWWarnFileDeactivated StatusWord = 0x6283

	SWErrMemoryFailure StatusWord = 0x6581
	SWErrSecurityIssue StatusWord = 0x6600
	SWErrWrongLength   StatusWord = 0x6700

	SWErrSecurityStatusNotSat StatusWord = 0x6982
	SWErrAuthMethodBlocked    StatusWord = 0x6983
	SWErrRefDataNotUsable     StatusWord = 0x6984
	SWErrCondOfUseNotSat      StatusWord = 0x6985
	SWErrCmdNotAllowedNoEF    StatusWord = 0x6986

	SWErrIncorrectParamsData StatusWord = 0x6A80
	SWErrFuncNotSupported    StatusWord = 0x6A81
	SWErrFileNotFound        StatusWord = 0x6A82
	SWErrRecordNotFound      StatusWord = 0x6A83
	SWErrNotEnoughMemory     StatusWord = 0x6A84
	SWErrIncorrectParamsP1P2 StatusWord = 0x6A86
	SWErrRefDataNotFound     StatusWord = 0x6A88

	SWErrWrongP1P2       StatusWord = 0x6B00
	SWErrInsInvalid      StatusWord = 0x6D00
	SWErrClaNotSupported StatusWord = 0x6E00
	SWErrUnknown         StatusWord = 0x6F00

	// SWQuirkResponseBytes (60 61) is not an ISO status at all: some PC/SC
	// reader drivers leak the transport-level procedure byte exchange for
	// "61 80 response available" up to the application layer.
	SWQuirkResponseBytes StatusWord = 0x6061
)

var swDescriptions = map[StatusWord]string{
	SWNoError:                 "Normal processing",
	SWWarnEOFReached:          "End of file or record reached",
	SWWarnFileDeactivated:     "Selected file deactivated",
	SWErrMemoryFailure:        "Memory failure",
	SWErrSecurityIssue:        "Security-related issue",
	SWErrWrongLength:          "Wrong length",
	SWErrSecurityStatusNotSat: "Security status not satisfied",
	SWErrAuthMethodBlocked:    "Authentication method blocked",
	SWErrRefDataNotUsable:     "Reference data not usable",
	SWErrCondOfUseNotSat:      "Conditions of use not satisfied",
	SWErrCmdNotAllowedNoEF:    "Command not allowed (no current EF)",
	SWErrIncorrectParamsData:  "Incorrect parameters in data field",
	SWErrFuncNotSupported:     "Function not supported",
	SWErrFileNotFound:         "File or application not found",
	SWErrRecordNotFound:       "Record not found",
	SWErrNotEnoughMemory:      "Not enough memory space in the file",
	SWErrIncorrectParamsP1P2:  "Incorrect parameters P1-P2",
	SWErrRefDataNotFound:      "Referenced data not found",
	SWErrWrongP1P2:            "Wrong parameters P1-P2",
	SWErrInsInvalid:           "Instruction code not supported or invalid",
	SWErrClaNotSupported:      "Class not supported",
	SWErrUnknown:              "No precise diagnosis",
	SWQuirkResponseBytes:      "Reader driver quirk: response bytes available",
}
