package micardo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rliebscher/OpenSC/pkg/tlv"
)

func keyRecords(s *Session, recs ...record) {
	s.dfInfos[pathKey([]uint16{MFID})] = &dfInfo{
		Path:        []uint16{MFID},
		RuleRecords: []record{{Number: 1, Data: tlv.Hex("90 00")}},
		KeyRecords:  recs,
	}
}

// A key record without a security environment template resolves with
// environment number zero.
func TestKeyReference(t *testing.T) {
	s, _ := newTestSession(t)
	keyRecords(s, record{Number: 1, Data: tlv.Hex("83 04 0102 4101")})

	ref, err := s.keyReference(0x4101)
	require.NoError(t, err)
	require.Equal(t, [2]byte{0x01, 0x02}, ref.RefData)
	require.Zero(t, ref.SENum)
}

func TestKeyReferenceWithSENumber(t *testing.T) {
	s, _ := newTestSession(t)
	keyRecords(s, record{Number: 1, Data: tlv.Hex(
		"83 04 0A0B 0100", // reference 0A0B for key file 0100
		"7B 03 80 01 02",  // stored in security environment 2
	)})

	ref, err := s.keyReference(0x0100)
	require.NoError(t, err)
	require.Equal(t, [2]byte{0x0A, 0x0B}, ref.RefData)
	require.Equal(t, 2, ref.SENum)
}

// The newest record for a file identifier wins.
func TestKeyReferenceNewestFirst(t *testing.T) {
	s, _ := newTestSession(t)
	keyRecords(s,
		record{Number: 1, Data: tlv.Hex("83 04 0101 4101")},
		record{Number: 2, Data: tlv.Hex("83 04 0202 4101")},
	)

	ref, err := s.keyReference(0x4101)
	require.NoError(t, err)
	require.Equal(t, [2]byte{0x02, 0x02}, ref.RefData)
}

func TestKeyReferenceNotFound(t *testing.T) {
	s, _ := newTestSession(t)
	keyRecords(s, record{Number: 1, Data: tlv.Hex("83 04 0102 4101")})

	_, err := s.keyReference(0x9999)
	require.ErrorIs(t, err, ErrKeyReferenceNotFound)
}

func TestKeyReferenceNoDirectory(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.keyReference(0x4101)
	require.ErrorIs(t, err, ErrKeyReferenceNotFound)
}

func TestSetSecurityEnvironment(t *testing.T) {
	s, card := newTestSession(t,
		step{"MSE SET sign", "00 22 41 B6 05 83 03 80 0102", "9000"},
	)
	keyRecords(s, record{Number: 1, Data: tlv.Hex("83 04 0102 4101")})

	require.NoError(t, s.SetSecurityEnvironment(OperationSign, tlv.Hex("4101"), 0))
	card.requireDrained(t)
}

// A key record naming a stored environment restores it before loading the
// key reference.
func TestSetSecurityEnvironmentWithRestore(t *testing.T) {
	s, card := newTestSession(t,
		step{"MSE RESTORE 2", "00 22 F3 02", "9000"},
		step{"MSE SET decipher", "00 22 41 B8 05 83 03 80 0A0B", "9000"},
	)
	keyRecords(s, record{Number: 1, Data: tlv.Hex("83 04 0A0B 0100 7B 03 80 01 02")})

	require.NoError(t, s.SetSecurityEnvironment(OperationDecipher, tlv.Hex("3F00 0100"), 0))
	card.requireDrained(t)
}

// Caller mistakes are rejected before anything reaches the card.
func TestSetSecurityEnvironmentRejects(t *testing.T) {
	s, card := newTestSession(t)
	keyRecords(s, record{Number: 1, Data: tlv.Hex("83 04 0102 4101")})

	err := s.SetSecurityEnvironment(OperationSign, tlv.Hex("4101"), 1)
	require.ErrorIs(t, err, ErrInvalidArguments)

	err = s.SetSecurityEnvironment(SecurityOperation(99), tlv.Hex("4101"), 0)
	require.ErrorIs(t, err, ErrInvalidArguments)

	err = s.SetSecurityEnvironment(OperationSign, tlv.Hex("41"), 0)
	require.ErrorIs(t, err, ErrInvalidArguments)

	// An unresolvable key file is caller error, not a card error.
	err = s.SetSecurityEnvironment(OperationSign, tlv.Hex("9999"), 0)
	require.ErrorIs(t, err, ErrInvalidArguments)

	card.requireDrained(t)
}

func TestComputeSignature(t *testing.T) {
	digest := tlv.Hex("0102030405060708 090A0B0C0D0E0F10 1112131415161718 191A1B1C1D1E1F20")
	s, card := newTestSession(t,
		step{"PSO sign", "00 2A 9E 9A 20 " +
			"0102030405060708 090A0B0C0D0E0F10 1112131415161718 191A1B1C1D1E1F20",
			"CAFE BABE 9000"},
	)

	sig, err := s.ComputeSignature(digest)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, tlv.Hex("CAFE BABE"), sig)
}

// Some reader drivers mangle the "61 80" trailer of the signature command
// into "60 61"; the signature is then fetched explicitly.
func TestComputeSignatureReaderQuirk(t *testing.T) {
	s, card := newTestSession(t,
		step{"PSO sign", "00 2A 9E 9A 02 AABB", "6061"},
		step{"explicit fetch", "00 C0 00 00 80", "DEAD BEEF 9000"},
	)

	sig, err := s.ComputeSignature(tlv.Hex("AABB"))
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, tlv.Hex("DEAD BEEF"), sig)
}

func TestComputeSignatureTooLong(t *testing.T) {
	s, card := newTestSession(t)
	_, err := s.ComputeSignature(make([]byte, 256))
	require.ErrorIs(t, err, ErrInvalidArguments)
	card.requireDrained(t)
}
