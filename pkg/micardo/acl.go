package micardo

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// ConditionKind enumerates the security condition data objects of an access
// rule.
type ConditionKind int

const (
	// CondAlways grants the guarded operations unconditionally.
	CondAlways ConditionKind = iota

	// CondNever denies the guarded operations unconditionally.
	CondNever

	// CondByte is a one-byte security condition referencing a security
	// environment mechanism.
	CondByte

	// CondAuthTemplate requires the authentication described by a control
	// reference template.
	CondAuthTemplate

	// CondSMTemplate requires secure messaging as described by a control
	// reference template.
	CondSMTemplate

	// CondOr and CondAnd combine the surrounding conditions.
	CondOr
	CondAnd
)

func (k ConditionKind) String() string {
	switch k {
	case CondAlways:
		return "always"
	case CondNever:
		return "never"
	case CondByte:
		return "condition byte"
	case CondAuthTemplate:
		return "authentication template"
	case CondSMTemplate:
		return "secure messaging template"
	case CondOr:
		return "or"
	case CondAnd:
		return "and"
	}
	return fmt.Sprintf("ConditionKind(%d)", int(k))
}

// SecurityCondition is one condition of an access rule. Value carries the
// raw template or condition byte where the kind has one.
type SecurityCondition struct {
	Kind  ConditionKind
	Value []byte
}

// AccessRule guards a group of operations on a file. The group is given
// either as an access-mode byte or as a command-class mask, depending on
// which data object opened the rule.
type AccessRule struct {
	// AccessMode is the access-mode byte, set when the rule was opened by
	// an AM data object of one byte.
	AccessMode byte

	// CommandClasses is the low nibble of a command-description tag: bit 3
	// guards the class byte, bit 2 the instruction, bits 1 and 0 the two
	// parameter bytes.
	CommandClasses byte

	Conditions []SecurityCondition
}

// interpretACL resolves a one-byte access-rule reference against the rule
// records of the current directory and attaches the interpretation to the
// descriptor. Interpretation is diagnostic in spirit: an unresolvable
// reference or an unparsable record is logged and leaves the descriptor
// without rules, it never fails the selection.
func (s *Session) interpretACL(fd *FileDescriptor, ref []byte) {
	if len(ref) != 1 {
		s.log.Debug("access-rule references longer than one byte are not supported",
			zap.Int("len", len(ref)))
		return
	}

	var rule *record
	if dfi := s.currentDF(); dfi != nil {
		for i := range dfi.RuleRecords {
			if dfi.RuleRecords[i].Number == int(ref[0]) {
				rule = &dfi.RuleRecords[i]
				break
			}
		}
	}
	if rule == nil {
		s.log.Debug("referenced access-rule record not available", zap.Uint8("recno", ref[0]))
		return
	}

	s.log.Debug("interpreting access rule",
		zap.Uint8("recno", ref[0]), zap.String("data", fmt.Sprintf("%X", rule.Data)))
	fd.Rules = interpretRuleBody(rule.Data, s.log)
}

// interpretRuleBody walks the data objects of one rule record. The record
// alternates between objects that open a rule (an access-mode byte or a
// command description) and the security conditions that guard it. Objects
// we cannot attribute to a rule are skipped until the next rule opener; the
// card family additionally uses tag 9C to introduce proprietary objects,
// which forces skipping as well.
func interpretRuleBody(data []byte, log *zap.Logger) []AccessRule {
	objs, err := tlv.Objects(data)
	if err != nil {
		log.Debug("unparsable access-rule record", zap.Error(err))
		return nil
	}

	var rules []AccessRule
	skip := true
	cond := func(k ConditionKind, v []byte) {
		log.Debug("security condition", zap.Stringer("kind", k), zap.Bool("skipped", skip))
		if skip || len(rules) == 0 {
			return
		}
		r := &rules[len(rules)-1]
		if len(v) > 0 {
			v = append([]byte(nil), v...)
		}
		r.Conditions = append(r.Conditions, SecurityCondition{Kind: k, Value: v})
	}

	for _, o := range objs {
		switch {
		case o.Tag == 0x80:
			if len(o.Value) != 1 {
				log.Debug("malformed access-mode byte", zap.Int("len", len(o.Value)))
				skip = true
				continue
			}
			log.Debug("access mode byte", zap.Uint8("am", o.Value[0]))
			rules = append(rules, AccessRule{AccessMode: o.Value[0]})
			skip = false

		case o.Tag >= 0x81 && o.Tag <= 0x8F:
			log.Debug("command description", zap.Uint8("classes", byte(o.Tag&0x0F)))
			rules = append(rules, AccessRule{CommandClasses: byte(o.Tag & 0x0F)})
			skip = false

		case o.Tag == 0x9C:
			// Proprietary object, everything up to the next rule
			// opener belongs to it.
			skip = true

		case o.Tag == 0x90:
			cond(CondAlways, nil)
		case o.Tag == 0x97:
			cond(CondNever, nil)
		case o.Tag == 0x9E:
			cond(CondByte, o.Value)
		case o.Tag == 0xA4:
			cond(CondAuthTemplate, o.Value)
		case o.Tag == 0xB4, o.Tag == 0xB6, o.Tag == 0xB8:
			cond(CondSMTemplate, o.Value)
		case o.Tag == 0xA0:
			cond(CondOr, nil)
		case o.Tag == 0xAF:
			cond(CondAnd, nil)

		default:
			log.Debug("unknown data object in access rule", zap.Uint("tag", o.Tag))
		}
	}
	return rules
}
