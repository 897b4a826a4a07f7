// Package micardo drives the card-resident file system of the MICARDO 2
// operating system, found on the German BMI signature card and the Estonian
// national ID card.
//
// MICARDO exposes a hierarchical file system over a flat command set: SELECT
// only moves a single level at a time (to the root, to a child directory, or
// to a child data file), so the package keeps a cache of the card's current
// position and translates multi-component selections into the minimal
// sequence of single-level commands. Each directory additionally carries two
// well-known record files, EF_Rule with the default access rules and EF_KeyD
// with the key directory; their contents are loaded once per directory and
// consulted when interpreting file control parameters and when preparing
// security environments for signing.
package micardo

import (
	"bytes"
	"encoding/hex"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
)

const (
	// MFID identifies the master file, the root of the file system.
	MFID uint16 = 0x3F00

	// fidCurrentDF is the reserved identifier a caller may use to refer to
	// the directory that is already selected.
	fidCurrentDF uint16 = 0x3FFF

	// efRule and efKeyD are the per-directory metadata files.
	efRule uint16 = 0x0030
	efKeyD uint16 = 0x0013

	// maxPathDepth bounds the selection cache. The card family never nests
	// deeper than this.
	maxPathDepth = 10
)

// RSAKeySizes lists the modulus sizes the card family supports for raw and
// PKCS#1 v1.5 signatures.
var RSAKeySizes = []int{512, 768, 1024}

// knownATRs lists the answer-to-reset byte strings of the supported cards.
var knownATRs = []string{
	// German BMI signature card
	"3b:ff:94:00:ff:80:b1:fe:45:1f:03:00:68:d2:76:00:00:28:ff:05:1e:31:80:00:90:00:23",
	// Estonian national ID card (EstEID ver 1.0)
	"3b:fe:94:00:ff:80:b1:fa:45:1f:03:45:73:74:45:49:44:20:76:65:72:20:31:2e:30:43",
}

// Match reports whether the given answer-to-reset belongs to a supported
// MICARDO 2 card.
func Match(atr []byte) bool {
	for _, ref := range knownATRs {
		want, err := hex.DecodeString(strings.ReplaceAll(ref, ":", ""))
		if err != nil {
			continue
		}
		if bytes.Equal(atr, want) {
			return true
		}
	}
	return false
}

// Session tracks the driver's view of one connected card: the cached
// selection path and the per-directory metadata loaded so far.
//
// The zero Session is not usable; construct one with NewSession. A Session
// serializes its security-environment exchanges internally but is otherwise
// meant to be used from a single goroutine, like the card itself.
type Session struct {
	client *iso7816.Client
	cla    byte
	log    *zap.Logger

	// mu keeps the restore-then-set sequence of a security-environment
	// switch from interleaving with another one.
	mu sync.Mutex

	// curPath mirrors the card's current position, root first. An empty
	// path means the position is unknown (e.g. after selecting by name).
	curPath []uint16

	// isEF is set when the last element of curPath is a data file rather
	// than a directory.
	isEF bool

	// dfInfos caches directory metadata, keyed by canonical path.
	dfInfos map[string]*dfInfo
}

// NewSession starts driving a freshly reset card. A reset leaves the master
// file selected, so the cache starts at the root and the root's metadata
// files are loaded eagerly; if that fails the failure is logged and deferred
// to the first operation that actually needs the metadata.
//
// A nil logger disables logging.
func NewSession(card iso7816.Transmitter, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		client:  iso7816.NewClient(card),
		log:     logger,
		curPath: []uint16{MFID},
		dfInfos: make(map[string]*dfInfo),
	}
	if err := s.loadSpecialFiles(); err != nil {
		s.log.Debug("priming root directory metadata failed", zap.Error(err))
	}
	return s
}

// Client exposes the underlying command channel for operations the driver
// does not wrap, e.g. reading records of an already selected file.
func (s *Session) Client() *iso7816.Client {
	return s.client
}

// Close discards all cached state. The card connection itself belongs to the
// caller and stays open.
func (s *Session) Close() {
	s.curPath = nil
	s.isEF = false
	s.dfInfos = make(map[string]*dfInfo)
}

// pathKey canonicalizes a selection path for use as a cache key.
func pathKey(ids []uint16) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(formatFID(id))
	}
	return sb.String()
}

// formatPath renders a selection path for log output, e.g. "3F00/EEEE".
func formatPath(ids []uint16) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = formatFID(id)
	}
	return strings.Join(parts, "/")
}

func formatFID(id uint16) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{
		digits[id>>12&0xF], digits[id>>8&0xF],
		digits[id>>4&0xF], digits[id&0xF],
	})
}
