package micardo

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
)

// record is one linear record of a metadata file, numbered as on the card.
type record struct {
	Number int
	Data   []byte
}

// dfInfo holds the metadata loaded for one directory.
type dfInfo struct {
	Path        []uint16
	RuleRecords []record
	KeyRecords  []record
}

// currentDF returns the cache entry for the directory the session is
// positioned in, creating it on first use. It returns nil when the cached
// position is empty or points at a data file.
func (s *Session) currentDF() *dfInfo {
	if len(s.curPath) == 0 || s.isEF {
		s.log.Debug("no current directory", zap.Bool("ef", s.isEF))
		return nil
	}
	key := pathKey(s.curPath)
	if dfi, ok := s.dfInfos[key]; ok {
		return dfi
	}
	dfi := &dfInfo{Path: append([]uint16(nil), s.curPath...)}
	s.dfInfos[key] = dfi
	return dfi
}

// loadSpecialFiles loads EF_Rule and EF_KeyD of the current directory into
// the cache. Directories are immutable in this card family, so a directory
// whose rules are already present is never refreshed. A missing key
// directory is normal and leaves the key records empty; a missing rule file
// is reported to the caller.
//
// Loading moves the card's position into the metadata files, which is fine:
// the cached path still names the directory, and the next selection starts
// from there.
func (s *Session) loadSpecialFiles() error {
	dfi := s.currentDF()
	if dfi == nil {
		return fmt.Errorf("no directory to load metadata for: %w", ErrInternal)
	}
	if len(dfi.RuleRecords) > 0 {
		return nil
	}
	dfi.RuleRecords, dfi.KeyRecords = nil, nil

	if _, err := s.selectPart(iso7816.SelectChildEF, efRule, false); err != nil {
		return fmt.Errorf("selecting the access-rule file failed: %w", err)
	}
	rules, err := s.readAllRecords()
	if err != nil {
		return fmt.Errorf("reading the access-rule file failed: %w", err)
	}
	dfi.RuleRecords = rules
	s.log.Debug("access-rule file loaded",
		zap.String("path", formatPath(dfi.Path)), zap.Int("records", len(rules)))

	if _, err := s.selectPart(iso7816.SelectChildEF, efKeyD, false); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			s.log.Debug("no key directory in this directory",
				zap.String("path", formatPath(dfi.Path)))
			return nil
		}
		return fmt.Errorf("selecting the key directory failed: %w", err)
	}
	keys, err := s.readAllRecords()
	if err != nil {
		return fmt.Errorf("reading the key directory failed: %w", err)
	}
	dfi.KeyRecords = keys
	s.log.Debug("key directory loaded",
		zap.String("path", formatPath(dfi.Path)), zap.Int("records", len(keys)))
	return nil
}

// readAllRecords reads the currently selected record file from record 1
// upward until the card reports the record number as unused. An end-of-file
// warning still carries valid data.
func (s *Session) readAllRecords() ([]record, error) {
	var recs []record
	for recno := 1; recno <= 0xFF; recno++ {
		trace, err := s.client.Send(iso7816.NewReadRecord(s.cla, byte(recno)))
		if err != nil {
			return nil, err
		}
		sw := trace.Status()
		if sw == iso7816.SWErrRecordNotFound {
			break
		}
		if sw != iso7816.SWNoError && sw != iso7816.SWWarnEOFReached {
			return nil, &StatusError{SW: sw}
		}
		data := append([]byte(nil), trace.Data()...)
		s.log.Debug("record read", zap.Int("recno", recno), zap.String("data", fmt.Sprintf("%X", data)))
		recs = append(recs, record{Number: recno, Data: data})
	}
	return recs, nil
}
