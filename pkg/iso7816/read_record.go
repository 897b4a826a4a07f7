package iso7816

// READ RECORD COMMAND LOGIC (ISO 7816-4):
// The READ RECORD command (INS 'B2') reads the content of one record of the
// current Elementary File (EF) or a file addressed by SFI.
//
// P1 (Record Number or ID):
// - If P2 indicates "Record number" (bit 3 = 1), P1 is the record number.
// - If P2 indicates "Record identifier" (bit 3 = 0), P1 is the record identifier.
//
// P2 (Reference Control):
// - Bits 8-4: Short File Identifier (SFI). If 0, use the current EF.
// - Bit 3:    0 = Reference by ID, 1 = Reference by Number.
// - Bits 2-1: Occurrence/Mode (First, Last, Next, Prev, or All).

// refByNumber is the P2 mode '100': P1 addresses a single record by number.
const refByNumber byte = 0b100

// NewReadRecord reads one record of the current EF by its number (1-based).
//
// READ RECORD is a Case 2 command (no data sent, data expected), so Le must
// be present; MaxShortLe makes the encoder append the trailing '00'.
func NewReadRecord(cla byte, recno byte) *CommandAPDU {
	return NewCommandAPDU(cla, InsReadRecord, recno, refByNumber, nil, MaxShortLe)
}

// NewReadRecordSFI reads a record by number from the file addressed by sfi
// (1-30) instead of the current EF.
func NewReadRecordSFI(cla byte, sfi, recno byte) *CommandAPDU {
	p2 := (sfi << 3) | refByNumber
	return NewCommandAPDU(cla, InsReadRecord, recno, p2, nil, MaxShortLe)
}
