package micardo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rliebscher/OpenSC/pkg/iso7816"
	"github.com/rliebscher/OpenSC/pkg/tlv"
)

// step is one expected exchange of a scripted card: the command the driver
// must send and the response the card gives back.
type step struct {
	name string
	want string
	resp string
}

type fakeCard struct {
	t      *testing.T
	script []step
	calls  int
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	if c.calls >= len(c.script) {
		c.t.Fatalf("unexpected command %X after the script ended", cmd)
	}
	st := c.script[c.calls]
	c.calls++
	require.Equal(c.t, tlv.Hex(st.want), cmd, "command %d (%s)", c.calls, st.name)
	return tlv.Hex(st.resp), nil
}

// requireDrained fails the test when scripted exchanges were left unused.
func (c *fakeCard) requireDrained(t *testing.T) {
	t.Helper()
	require.Equal(t, len(c.script), c.calls, "script not fully consumed")
}

// newTestSession builds a session positioned at the root without going
// through NewSession, so tests control every exchange themselves.
func newTestSession(t *testing.T, steps ...step) (*Session, *fakeCard) {
	t.Helper()
	card := &fakeCard{t: t, script: steps}
	s := &Session{
		client:  iso7816.NewClient(card),
		log:     zaptest.NewLogger(t),
		curPath: []uint16{MFID},
		dfInfos: make(map[string]*dfInfo),
	}
	return s, card
}
