package micardo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/bits"
	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// FileType classifies a selected file.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeWorkingEF
	FileTypeInternalEF
	FileTypeDF
)

func (t FileType) String() string {
	switch t {
	case FileTypeWorkingEF:
		return "working EF"
	case FileTypeInternalEF:
		return "internal EF"
	case FileTypeDF:
		return "DF"
	case FileTypeUnknown:
		return "unknown"
	}
	return fmt.Sprintf("FileType(%d)", int(t))
}

// FileDescriptor is the parsed file control parameter set of a selected
// file. Fields the card did not report keep their zero value.
type FileDescriptor struct {
	// ID is the two-byte file identifier, zero when not reported.
	ID uint16

	// Size is the file size in bytes. For record files some cards report
	// the total allocated size here instead of the net data size.
	Size int

	Type FileType

	// EFStructure is the low three bits of the file descriptor byte:
	// 1 transparent, 2 linear fixed, 4 linear variable, 6 cyclic.
	EFStructure byte

	Shareable bool

	// Name is the application name of a DF, 1 to 16 bytes.
	Name []byte

	PropAttr []byte
	SecAttr  []byte

	// Rules is the interpretation of the access rule the descriptor
	// references, when the rule could be resolved.
	Rules []AccessRule
}

// DisplayName renders the application name with unprintable bytes escaped.
func (fd *FileDescriptor) DisplayName() string {
	return tlv.MakeSafeASCII(fd.Name)
}

// parseFCP interprets a file control parameter template. Parsing is best
// effort: the card family is known to omit elements and to misuse tag 85
// for the file size, so unparsable or missing elements leave the
// corresponding descriptor fields at their zero value rather than failing
// the selection.
func (s *Session) parseFCP(data []byte) *FileDescriptor {
	fd := &FileDescriptor{}

	if v, err := tlv.FindTag(data, 0x83); err == nil && len(v) == 2 {
		fd.ID = uint16(v[0])<<8 | uint16(v[1])
	}

	// The net data size lives in tag 81. Some cards put it in tag 85
	// instead, which by the book holds proprietary data; when it does we
	// must not interpret 85 as proprietary attributes later on. Cards
	// reporting neither may still report the total size in tag 80.
	badFDE := false
	size, err := tlv.FindTag(data, 0x81)
	if err != nil {
		size, err = tlv.FindTag(data, 0x85)
		badFDE = err == nil
	}
	if err == nil {
		if len(size) >= 2 {
			fd.Size = int(size[0])<<8 | int(size[1])
		}
	} else if v, e := tlv.FindTag(data, 0x80); e == nil && len(v) >= 2 {
		fd.Size = int(v[0])<<8 | int(v[1])
	}

	if v, err := tlv.FindTag(data, 0x82); err == nil && len(v) > 0 {
		b := v[0]
		fd.Shareable = bits.IsSet(b, 7)
		fd.EFStructure = bits.GetRange(b, 3, 1)
		switch bits.GetRange(b, 6, 4) {
		case 0:
			fd.Type = FileTypeWorkingEF
		case 1:
			fd.Type = FileTypeInternalEF
		case 7:
			fd.Type = FileTypeDF
		default:
			s.log.Debug("unknown file descriptor byte", zap.Uint8("fdb", b))
		}
	}

	if v, err := tlv.FindTag(data, 0x84); err == nil && len(v) >= 1 && len(v) <= 16 {
		fd.Name = append([]byte(nil), v...)
		s.log.Debug("file name", zap.String("name", tlv.MakeSafeASCII(v)))
	}

	if !badFDE {
		if v, err := tlv.FindTag(data, 0x85); err == nil && len(v) > 0 {
			fd.PropAttr = append([]byte(nil), v...)
		}
	}
	if v, err := tlv.FindTag(data, 0xA5); err == nil && len(v) > 0 {
		fd.PropAttr = append([]byte(nil), v...)
	}

	if v, err := tlv.FindTag(data, 0x86); err == nil && len(v) > 0 {
		fd.SecAttr = append([]byte(nil), v...)
	}

	if v, err := tlv.FindTag(data, 0x8B); err == nil && len(v) > 0 {
		s.interpretACL(fd, v)
	} else if v, err := tlv.FindTag(data, 0xA1); err == nil {
		// Expanded form: the reference is nested in a constructed
		// security attribute template.
		if ref, err := tlv.FindTag(v, 0x8B); err == nil && len(ref) > 0 {
			s.interpretACL(fd, ref)
		}
	}

	return fd
}
