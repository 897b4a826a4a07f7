package iso7816

// TRANSACTION:
// A Transaction is the atomic unit of communication defined in ISO 7816-3:
// one Command APDU sent by the terminal, followed by one Response APDU sent
// back by the card.
//
// TRACE:
// A Trace is a chronological sequence of Transactions capturing the full
// history of one logical operation. A single logical intent (e.g. "select
// this file") may result in multiple physical transactions due to protocol
// mechanisms:
// 1. "61 XX" (Process Completed): the card has XX extra bytes, the terminal
//    must send GET RESPONSE.
// 2. "6C XX" (Wrong Length): the terminal must re-send the command with Le = XX.
//
// In these cases the Trace contains the entire conversation and IsSuccess()
// evaluates the final outcome.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
// Intermediate 61XX statuses do not matter for the overall outcome.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the final status word, or 0 for an empty trace.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data returns the response data of the final transaction.
func (t Trace) Data() []byte {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil
	}
	return last.Response.Data
}
