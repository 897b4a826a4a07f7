package micardo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// PathType discriminates the three ways a file can be addressed.
type PathType int

const (
	// PathTypeFileID addresses a single file identifier relative to the
	// current position. An empty identifier list re-selects the current
	// file.
	PathTypeFileID PathType = iota

	// PathTypePath addresses a sequence of identifiers, absolute when it
	// starts at the root and relative otherwise.
	PathTypePath

	// PathTypeName addresses an application by its 1 to 16 byte name.
	PathTypeName
)

func (t PathType) String() string {
	switch t {
	case PathTypeFileID:
		return "File ID"
	case PathTypePath:
		return "Path"
	case PathTypeName:
		return "DF Name"
	}
	return fmt.Sprintf("PathType(%d)", int(t))
}

// Path is a file selection request.
type Path struct {
	Type PathType
	IDs  []uint16
	Name []byte
}

// AbsolutePath builds a path request rooted at the given identifiers. Pass
// MFID first for an absolute selection.
func AbsolutePath(ids ...uint16) Path {
	return Path{Type: PathTypePath, IDs: ids}
}

// FileIDPath builds a request for a single identifier relative to the
// current position.
func FileIDPath(id uint16) Path {
	return Path{Type: PathTypeFileID, IDs: []uint16{id}}
}

// CurrentFile builds a request that re-selects whatever is currently
// selected, useful to fetch its file control parameters.
func CurrentFile() Path {
	return Path{Type: PathTypeFileID}
}

// NamePath builds a request that selects an application by name.
func NamePath(name []byte) Path {
	return Path{Type: PathTypeName, Name: name}
}

// SelectFile walks the card to the requested file, reusing as much of the
// cached position as possible. With want set, the card is asked for the
// file's control parameters and the parsed descriptor is returned; without
// it the selection is silent and both return values may be nil.
func (s *Session) SelectFile(p Path, want bool) (*FileDescriptor, error) {
	s.log.Debug("select file",
		zap.Stringer("type", p.Type),
		zap.String("path", formatPath(p.IDs)),
		zap.String("cached", formatPath(s.curPath)),
		zap.Bool("ef", s.isEF))

	if len(s.curPath) > 0 && s.curPath[0] != MFID {
		return nil, fmt.Errorf("selection cache does not start at the root: %w", ErrInternal)
	}

	switch p.Type {
	case PathTypeName:
		return s.selectByName(p.Name, want)
	case PathTypePath:
		return s.selectByPath(p.IDs, want)
	case PathTypeFileID:
		return s.selectByFID(p.IDs, want)
	}
	return nil, fmt.Errorf("unsupported path type %d: %w", int(p.Type), ErrInvalidArguments)
}

// selectPart issues one single-level SELECT. A request for the root always
// uses the dedicated selection kind regardless of what the caller asked for.
func (s *Session) selectPart(kind iso7816.SelectKind, fid uint16, want bool) (*FileDescriptor, error) {
	if fid == MFID {
		kind = iso7816.SelectMF
	}
	s.log.Debug("select part", zap.Stringer("kind", kind), zap.String("fid", formatFID(fid)))

	trace, err := s.client.Send(iso7816.NewSelect(s.cla, kind, fid, want))
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(trace.Status()); err != nil {
		return nil, err
	}
	if !want {
		return nil, nil
	}
	return s.parseSelectResponse(trace.Data())
}

// parseSelectResponse extracts and parses the file control parameters from a
// selection response. The card wraps them in an FCI template (tag 6F).
func (s *Session) parseSelectResponse(data []byte) (*FileDescriptor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no file control information returned: %w", ErrUnknownData)
	}
	body, err := tlv.FindTag(data, 0x6F)
	if err != nil {
		return nil, fmt.Errorf("unexpected select response %X: %w", data, ErrUnknownData)
	}
	return s.parseFCP(body), nil
}

// selectDown walks the given identifiers one level at a time, appending each
// successfully selected component to the cache. With dfOnly unset the final
// component is first tried as a data file and falls back to a directory
// select. When the walk ends on a directory its metadata files are loaded;
// a metadata failure is logged but does not undo an otherwise successful
// selection, since cards without an EF_Rule are common.
func (s *Session) selectDown(ids []uint16, dfOnly, want bool) (*FileDescriptor, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty path: %w", ErrInvalidArguments)
	}

	var fd *FileDescriptor
	foundEF := false
	for i, fid := range ids {
		if len(s.curPath) >= maxPathDepth {
			return nil, fmt.Errorf("selection path deeper than %d: %w", maxPathDepth, ErrInternal)
		}
		last := i == len(ids)-1

		selected := false
		if last && !dfOnly {
			d, err := s.selectPart(iso7816.SelectChildEF, fid, want)
			if err == nil {
				fd = d
				foundEF = true
				selected = true
			}
		}
		if !selected {
			d, err := s.selectPart(iso7816.SelectChildDF, fid, want && last)
			if err != nil {
				return nil, fmt.Errorf("selecting %s failed: %w", formatFID(fid), err)
			}
			if last {
				fd = d
			}
		}
		s.curPath = append(s.curPath, fid)
	}
	s.isEF = foundEF

	if !foundEF {
		if err := s.loadSpecialFiles(); err != nil {
			s.log.Debug("loading directory metadata failed",
				zap.String("path", formatPath(s.curPath)), zap.Error(err))
		}
	}
	return fd, nil
}

// selectByPath resolves a multi-component selection against the cache.
func (s *Session) selectByPath(ids []uint16, want bool) (*FileDescriptor, error) {
	// A leading reference to the current directory adds nothing.
	if len(ids) > 0 && ids[0] == fidCurrentDF {
		ids = ids[1:]
	}
	if len(ids) == 0 || len(ids) >= maxPathDepth {
		return nil, fmt.Errorf("path of %d components: %w", len(ids), ErrInvalidArguments)
	}

	if ids[0] == MFID {
		if len(ids) == 1 {
			// Going straight to the root invalidates everything below it.
			fd, err := s.selectPart(iso7816.SelectMF, MFID, want)
			if err != nil {
				return nil, err
			}
			s.curPath = append(s.curPath[:0], MFID)
			s.isEF = false
			return fd, nil
		}

		i := commonPrefixLen(ids, s.curPath)
		switch {
		case len(s.curPath) == 0:
			// Cold cache, walk the whole path.
			return s.selectDown(ids, false, want)

		case i == len(ids) && i == len(s.curPath):
			// Already there.
			if !want {
				return nil, nil
			}
			// Re-descend into the final component to obtain its
			// descriptor.
			if len(s.curPath) < 2 {
				return nil, fmt.Errorf("cannot re-descend from the root: %w", ErrInternal)
			}
			s.curPath = s.curPath[:len(s.curPath)-1]
			s.isEF = false
			return s.selectDown(ids[len(ids)-1:], false, want)

		case i == len(ids):
			// Target is an ancestor of the cached position. Only
			// directories can lie on the way, so force directory
			// selects.
			s.curPath = s.curPath[:0]
			s.isEF = false
			return s.selectDown(ids, true, want)

		default:
			// Paths diverge, or the request extends below the cached
			// position. Restart from the root rather than reasoning
			// about partial descents.
			s.curPath = s.curPath[:0]
			s.isEF = false
			return s.selectDown(ids, false, want)
		}
	}

	// Relative path. Establish a known position first if necessary.
	if len(s.curPath) == 0 {
		if _, err := s.selectPart(iso7816.SelectMF, MFID, false); err != nil {
			return nil, err
		}
		s.curPath = append(s.curPath, MFID)
		s.isEF = false
	}
	if s.isEF {
		if len(s.curPath) < 2 {
			return nil, fmt.Errorf("data file cached at the root: %w", ErrInternal)
		}
		s.curPath = s.curPath[:len(s.curPath)-1]
		s.isEF = false
	}
	if len(s.curPath)+len(ids) > maxPathDepth {
		return nil, fmt.Errorf("relative path of %d components exceeds the depth limit: %w",
			len(ids), ErrInvalidArguments)
	}
	return s.selectDown(ids, false, want)
}

// selectByFID resolves a single-identifier selection.
func (s *Session) selectByFID(ids []uint16, want bool) (*FileDescriptor, error) {
	if len(ids) > 1 {
		return nil, fmt.Errorf("file identifier request with %d components: %w",
			len(ids), ErrInvalidArguments)
	}

	if len(ids) == 0 {
		// Re-select the current file.
		if !want {
			return nil, nil
		}
		if len(s.curPath) == 0 {
			return nil, fmt.Errorf("no current file to re-select: %w", ErrInternal)
		}
		if len(s.curPath) == 1 {
			return s.selectPart(iso7816.SelectMF, MFID, true)
		}
		last := s.curPath[len(s.curPath)-1]
		s.curPath = s.curPath[:len(s.curPath)-1]
		s.isEF = false
		return s.selectDown([]uint16{last}, false, true)
	}

	fid := ids[0]
	if fid == fidCurrentDF {
		// Reserved reference to the directory that is already selected.
		return nil, nil
	}
	if fid == MFID {
		fd, err := s.selectPart(iso7816.SelectMF, MFID, want)
		if err != nil {
			return nil, err
		}
		s.curPath = append(s.curPath[:0], MFID)
		s.isEF = false
		return fd, nil
	}

	if len(s.curPath) == 0 {
		if _, err := s.selectPart(iso7816.SelectMF, MFID, false); err != nil {
			return nil, err
		}
		s.curPath = append(s.curPath, MFID)
		s.isEF = false
	}
	if s.isEF {
		if len(s.curPath) < 2 {
			return nil, fmt.Errorf("data file cached at the root: %w", ErrInternal)
		}
		s.curPath = s.curPath[:len(s.curPath)-1]
		s.isEF = false
	}
	return s.selectDown([]uint16{fid}, false, want)
}

// selectByName selects an application by its name. The card's resulting
// position is not derivable from the name, so the cache is invalidated until
// the next absolute selection.
func (s *Session) selectByName(name []byte, want bool) (*FileDescriptor, error) {
	if len(name) == 0 || len(name) > 16 {
		return nil, fmt.Errorf("application name of %d bytes: %w", len(name), ErrInvalidArguments)
	}

	trace, err := s.client.Send(iso7816.NewSelectByName(s.cla, name, want))
	s.curPath = s.curPath[:0]
	s.isEF = false
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(trace.Status()); err != nil {
		return nil, err
	}
	if !want {
		return nil, nil
	}
	return s.parseSelectResponse(trace.Data())
}

func commonPrefixLen(a, b []uint16) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
