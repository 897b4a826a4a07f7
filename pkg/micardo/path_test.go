package micardo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// Selecting 3F00/4100/4101 from a cold cache must issue exactly one
// single-level select per component, trying the final component as a data
// file first.
func TestSelectFileColdCache(t *testing.T) {
	s, card := newTestSession(t,
		step{"select MF", "00 A4 00 0C 02 3F00", "9000"},
		step{"select DF 4100", "00 A4 01 0C 02 4100", "9000"},
		step{"select EF 4101", "00 A4 02 0C 02 4101", "9000"},
	)
	s.curPath = nil

	fd, err := s.SelectFile(AbsolutePath(0x3F00, 0x4100, 0x4101), false)
	require.NoError(t, err)
	require.Nil(t, fd)
	card.requireDrained(t)

	require.Equal(t, []uint16{0x3F00, 0x4100, 0x4101}, s.curPath)
	require.True(t, s.isEF)
}

// Re-selecting the path the cache already points to must not talk to the
// card at all.
func TestSelectFileIdempotent(t *testing.T) {
	s, card := newTestSession(t)
	s.curPath = []uint16{0x3F00, 0x4100, 0x4101}
	s.isEF = true

	fd, err := s.SelectFile(AbsolutePath(0x3F00, 0x4100, 0x4101), false)
	require.NoError(t, err)
	require.Nil(t, fd)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0x4100, 0x4101}, s.curPath)
}

// Moving to an ancestor of the cached position must re-descend from the
// root with directory selects only, never attempting a data file select.
func TestSelectFileAncestor(t *testing.T) {
	s, card := newTestSession(t,
		step{"select MF", "00 A4 00 0C 02 3F00", "9000"},
		step{"select DF 4100", "00 A4 01 0C 02 4100", "9000"},
		// The walk ends on a directory, so its metadata is loaded.
		// This card has no rule file there.
		step{"select EF_Rule", "00 A4 02 0C 02 0030", "6A82"},
	)
	s.curPath = []uint16{0x3F00, 0x4100, 0x4200}
	s.isEF = false

	_, err := s.SelectFile(AbsolutePath(0x3F00, 0x4100), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0x4100}, s.curPath)
	require.False(t, s.isEF)
}

// When the final component is a directory, the data file attempt fails and
// the driver falls back to a directory select of the same identifier.
func TestSelectFileEFFallbackToDF(t *testing.T) {
	s, card := newTestSession(t,
		// Extending the cached path restarts the walk from the root.
		step{"select MF", "00 A4 00 0C 02 3F00", "9000"},
		step{"select EF EEEE", "00 A4 02 0C 02 EEEE", "6A82"},
		step{"select DF EEEE", "00 A4 01 0C 02 EEEE", "9000"},
		step{"select EF_Rule", "00 A4 02 0C 02 0030", "9000"},
		step{"read rule 1", "00 B2 01 04 00", "80 01 01 90 00 9000"},
		step{"read rule 2", "00 B2 02 04 00", "6A83"},
		step{"select EF_KeyD", "00 A4 02 0C 02 0013", "6A82"},
	)

	_, err := s.SelectFile(AbsolutePath(0x3F00, 0xEEEE), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0xEEEE}, s.curPath)
	require.False(t, s.isEF)

	dfi := s.dfInfos[pathKey(s.curPath)]
	require.NotNil(t, dfi)
	require.Len(t, dfi.RuleRecords, 1)
	require.Empty(t, dfi.KeyRecords)
}

// Divergent paths restart the walk from the root.
func TestSelectFileDivergent(t *testing.T) {
	s, card := newTestSession(t,
		step{"select MF", "00 A4 00 0C 02 3F00", "9000"},
		step{"select DF 5100", "00 A4 01 0C 02 5100", "9000"},
		step{"select EF 5101", "00 A4 02 0C 02 5101", "9000"},
	)
	s.curPath = []uint16{0x3F00, 0x4100, 0x4101}
	s.isEF = true

	_, err := s.SelectFile(AbsolutePath(0x3F00, 0x5100, 0x5101), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0x5100, 0x5101}, s.curPath)
	require.True(t, s.isEF)
}

// An exact cache hit with a descriptor request still has to ask the card,
// by popping one level and re-descending into the final component.
func TestSelectFileExactHitWithDescriptor(t *testing.T) {
	s, card := newTestSession(t,
		step{"re-select EF 4101", "00 A4 02 00 02 4101",
			"6F 0B 83 02 4101 81 02 0064 82 01 41 9000"},
	)
	s.curPath = []uint16{0x3F00, 0x4101}
	s.isEF = true

	fd, err := s.SelectFile(AbsolutePath(0x3F00, 0x4101), true)
	require.NoError(t, err)
	card.requireDrained(t)
	require.NotNil(t, fd)
	require.Equal(t, uint16(0x4101), fd.ID)
	require.Equal(t, []uint16{0x3F00, 0x4101}, s.curPath)
	require.True(t, s.isEF)
}

// A leading 3FFF only refers to the current directory and is stripped.
func TestSelectFileStripsCurrentDFPrefix(t *testing.T) {
	s, card := newTestSession(t,
		step{"select EF 5044", "00 A4 02 0C 02 5044", "9000"},
	)
	s.curPath = []uint16{0x3F00, 0xEEEE}

	_, err := s.SelectFile(AbsolutePath(0x3FFF, 0x5044), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0xEEEE, 0x5044}, s.curPath)
	require.True(t, s.isEF)
}

func TestSelectFileRejectsBadPaths(t *testing.T) {
	s, card := newTestSession(t)

	_, err := s.SelectFile(AbsolutePath(), false)
	require.ErrorIs(t, err, ErrInvalidArguments)

	long := make([]uint16, maxPathDepth)
	long[0] = MFID
	_, err = s.SelectFile(Path{Type: PathTypePath, IDs: long}, false)
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = s.SelectFile(Path{Type: PathTypeFileID, IDs: []uint16{1, 2}}, false)
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = s.SelectFile(NamePath(nil), false)
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = s.SelectFile(NamePath(make([]byte, 17)), false)
	require.ErrorIs(t, err, ErrInvalidArguments)

	card.requireDrained(t)
}

// Selecting by file identifier while a data file is selected pops back to
// the containing directory first.
func TestSelectFileByFIDFromEF(t *testing.T) {
	s, card := newTestSession(t,
		step{"select sibling EF", "00 A4 02 0C 02 5045", "9000"},
	)
	s.curPath = []uint16{0x3F00, 0xEEEE, 0x5044}
	s.isEF = true

	_, err := s.SelectFile(FileIDPath(0x5045), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0xEEEE, 0x5045}, s.curPath)
	require.True(t, s.isEF)
}

// The reserved identifier 3FFF is a no-op in file identifier mode.
func TestSelectFileByFIDCurrentDF(t *testing.T) {
	s, card := newTestSession(t)
	s.curPath = []uint16{0x3F00, 0xEEEE}

	fd, err := s.SelectFile(FileIDPath(fidCurrentDF), false)
	require.NoError(t, err)
	require.Nil(t, fd)
	card.requireDrained(t)
	require.Equal(t, []uint16{0x3F00, 0xEEEE}, s.curPath)
}

// An empty file identifier request with a descriptor wanted re-selects the
// current file.
func TestSelectFileReselectCurrent(t *testing.T) {
	s, card := newTestSession(t,
		step{"re-select EF 5044", "00 A4 02 00 02 5044",
			"6F 07 83 02 5044 82 01 42 9000"},
	)
	s.curPath = []uint16{0x3F00, 0xEEEE, 0x5044}
	s.isEF = true

	fd, err := s.SelectFile(CurrentFile(), true)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Equal(t, uint16(0x5044), fd.ID)
	require.Equal(t, []uint16{0x3F00, 0xEEEE, 0x5044}, s.curPath)
}

// Selecting by application name invalidates the cached position even on
// success, since the resulting position is unknown.
func TestSelectFileByName(t *testing.T) {
	aid := tlv.Hex("D2 76 00 00 66 01")
	s, card := newTestSession(t,
		step{"select by name", "00 A4 04 0C 06 D276 0000 6601", "9000"},
	)
	s.curPath = []uint16{0x3F00, 0xEEEE}

	_, err := s.SelectFile(NamePath(aid), false)
	require.NoError(t, err)
	card.requireDrained(t)
	require.Empty(t, s.curPath)
	require.False(t, s.isEF)
}

// A failed select of an inner component surfaces the card's status.
func TestSelectFilePropagatesCardError(t *testing.T) {
	s, card := newTestSession(t,
		step{"select MF", "00 A4 00 0C 02 3F00", "9000"},
		step{"select DF 4100", "00 A4 01 0C 02 4100", "6A82"},
	)
	s.curPath = nil

	_, err := s.SelectFile(AbsolutePath(0x3F00, 0x4100, 0x4101), false)
	require.ErrorIs(t, err, ErrFileNotFound)
	card.requireDrained(t)
}
