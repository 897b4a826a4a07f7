package micardo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rliebscher/OpenSC/pkg/tlv"
)

func TestMatch(t *testing.T) {
	esteid := tlv.Hex("3B FE 94 00 FF 80 B1 FA 45 1F 03 45 73 74 45 49 44 20 76 65 72 20 31 2E 30 43")
	require.True(t, Match(esteid))

	bmi := tlv.Hex("3B FF 94 00 FF 80 B1 FE 45 1F 03 00 68 D2 76 00 00 28 FF 05 1E 31 80 00 90 00 23")
	require.True(t, Match(bmi))

	require.False(t, Match(nil))
	require.False(t, Match(tlv.Hex("3B 00")))
	// A prefix of a known answer-to-reset is not a match.
	require.False(t, Match(esteid[:10]))
}

// A fresh session starts at the root and eagerly loads its metadata.
func TestNewSession(t *testing.T) {
	card := &fakeCard{t: t, script: []step{
		{"select EF_Rule", "00 A4 02 0C 02 0030", "9000"},
		{"read rule 1", "00 B2 01 04 00", "80 01 01 90 00 9000"},
		{"read rule 2", "00 B2 02 04 00", "6A83"},
		{"select EF_KeyD", "00 A4 02 0C 02 0013", "6A82"},
	}}

	s := NewSession(card, zaptest.NewLogger(t))
	card.requireDrained(t)

	require.Equal(t, []uint16{MFID}, s.curPath)
	require.False(t, s.isEF)
	dfi := s.dfInfos[pathKey([]uint16{MFID})]
	require.NotNil(t, dfi)
	require.Len(t, dfi.RuleRecords, 1)
}

// A card without metadata files still yields a usable session.
func TestNewSessionWithoutMetadata(t *testing.T) {
	card := &fakeCard{t: t, script: []step{
		{"select EF_Rule", "00 A4 02 0C 02 0030", "6A82"},
	}}

	s := NewSession(card, nil)
	card.requireDrained(t)
	require.Equal(t, []uint16{MFID}, s.curPath)
}

func TestSessionClose(t *testing.T) {
	card := &fakeCard{t: t, script: []step{
		{"select EF_Rule", "00 A4 02 0C 02 0030", "6A82"},
	}}
	s := NewSession(card, nil)

	s.Close()
	require.Empty(t, s.curPath)
	require.Empty(t, s.dfInfos)
}

func TestFormatPath(t *testing.T) {
	require.Equal(t, "3F00/EEEE/5044", formatPath([]uint16{0x3F00, 0xEEEE, 0x5044}))
	require.Equal(t, "", formatPath(nil))
	require.Equal(t, "3F00EEEE", pathKey([]uint16{0x3F00, 0xEEEE}))
}
