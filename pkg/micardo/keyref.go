package micardo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// SecurityOperation selects which control reference template a security
// environment is set up for.
type SecurityOperation int

const (
	// OperationSign prepares the environment for computing a digital
	// signature.
	OperationSign SecurityOperation = iota

	// OperationDecipher prepares the environment for decryption.
	OperationDecipher
)

func (op SecurityOperation) String() string {
	switch op {
	case OperationSign:
		return "sign"
	case OperationDecipher:
		return "decipher"
	}
	return fmt.Sprintf("SecurityOperation(%d)", int(op))
}

// keyReference is the card-internal handle of a private key, resolved from
// the key directory of the current directory.
type keyReference struct {
	// RefData is the two-byte reference the card expects in a control
	// reference template.
	RefData [2]byte

	// SENum is the number of the security environment to restore before
	// the key can be used, zero when the key record names none.
	SENum int
}

// keyReference scans the key directory of the current directory for the
// record describing the key file with the given identifier. Records are
// scanned newest first so that re-personalized keys shadow older entries.
func (s *Session) keyReference(fid uint16) (keyReference, error) {
	dfi := s.currentDF()
	if dfi == nil || len(dfi.KeyRecords) == 0 {
		s.log.Debug("key directory not loaded", zap.String("fid", formatFID(fid)))
		return keyReference{}, ErrKeyReferenceNotFound
	}

	for i := len(dfi.KeyRecords) - 1; i >= 0; i-- {
		rec := dfi.KeyRecords[i]
		v, err := tlv.FindTag(rec.Data, 0x83)
		if err != nil || len(v) != 4 {
			continue
		}
		if v[2] != byte(fid>>8) || v[3] != byte(fid) {
			continue
		}
		ref := keyReference{RefData: [2]byte{v[0], v[1]}}
		if se, err := tlv.FindTag(rec.Data, 0x7B); err == nil {
			if num, err := tlv.FindTag(se, 0x80); err == nil && len(num) == 1 {
				ref.SENum = int(num[0])
			}
		}
		s.log.Debug("key reference resolved",
			zap.String("fid", formatFID(fid)),
			zap.String("ref", fmt.Sprintf("%X", ref.RefData[:])),
			zap.Int("se", ref.SENum))
		return ref, nil
	}
	return keyReference{}, ErrKeyReferenceNotFound
}

// SetSecurityEnvironment prepares the card for the given operation with the
// private key stored in the key file that fileRef names. fileRef carries the
// key file identifier in its last two bytes; slot must be zero, the card
// family has a single environment slot.
//
// When the key's directory record names a stored security environment it is
// restored first, then the key reference is loaded into the operation's
// control reference template. The two commands are issued as one unit.
func (s *Session) SetSecurityEnvironment(op SecurityOperation, fileRef []byte, slot int) error {
	if slot != 0 {
		return fmt.Errorf("security environment slot %d: %w", slot, ErrInvalidArguments)
	}
	var crt byte
	switch op {
	case OperationSign:
		crt = iso7816.CRTDigitalSignature
	case OperationDecipher:
		crt = iso7816.CRTConfidentiality
	default:
		return fmt.Errorf("security operation %d: %w", int(op), ErrInvalidArguments)
	}
	if len(fileRef) < 2 {
		return fmt.Errorf("key file reference of %d bytes: %w", len(fileRef), ErrInvalidArguments)
	}
	fid := uint16(fileRef[len(fileRef)-2])<<8 | uint16(fileRef[len(fileRef)-1])

	ref, err := s.keyReference(fid)
	if err != nil {
		return fmt.Errorf("no key reference for file %s: %w", formatFID(fid), ErrInvalidArguments)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.SENum != 0 {
		trace, err := s.client.Send(iso7816.NewManageSecurityEnvRestore(s.cla, byte(ref.SENum)))
		if err != nil {
			return err
		}
		if err := CheckStatus(trace.Status()); err != nil {
			return fmt.Errorf("restoring security environment %d failed: %w", ref.SENum, err)
		}
	}

	body := []byte{0x83, 0x03, 0x80, ref.RefData[0], ref.RefData[1]}
	trace, err := s.client.Send(iso7816.NewManageSecurityEnvSet(s.cla, crt, body))
	if err != nil {
		return err
	}
	if err := CheckStatus(trace.Status()); err != nil {
		return fmt.Errorf("setting security environment for %s failed: %w", op, err)
	}
	return nil
}

// ComputeSignature signs the given digest with the key the current security
// environment references and returns the signature in a fresh slice. The
// payload must fit a single short command.
func (s *Session) ComputeSignature(data []byte) ([]byte, error) {
	if len(data) > iso7816.MaxShortLc {
		return nil, fmt.Errorf("signature input of %d bytes exceeds a single command: %w",
			len(data), ErrInvalidArguments)
	}

	trace, err := s.client.Send(iso7816.NewComputeDigitalSignature(s.cla, data))
	if err != nil {
		return nil, err
	}
	if trace.Status() == iso7816.SWQuirkResponseBytes {
		// Some reader drivers deliver the "61 80" trailer of this
		// command as "60 61". Fetch the signature explicitly.
		trace, err = s.client.Send(iso7816.NewGetResponse(s.cla, 0x80))
		if err != nil {
			return nil, err
		}
	}
	if err := CheckStatus(trace.Status()); err != nil {
		return nil, err
	}
	return append([]byte(nil), trace.Data()...), nil
}
