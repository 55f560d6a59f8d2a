package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"swotrace/itm"
	"swotrace/logging"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New(logging.Discard)
	var got itm.Message
	d.On(itm.KindSoftware, func(m itm.Message) { got = m })

	d.Dispatch(itm.Message{Kind: itm.KindSoftware, Value: 42})
	assert.EqualValues(t, 42, got.Value)
}

func TestDispatchIgnoresMissingHandler(t *testing.T) {
	d := New(logging.Discard)
	assert.NotPanics(t, func() {
		d.Dispatch(itm.Message{Kind: itm.KindException})
	})
}

func TestDispatchStreamOrderPreserved(t *testing.T) {
	d := New(logging.Discard)
	var order []uint32
	d.On(itm.KindPCSample, func(m itm.Message) { order = append(order, m.PC) })

	for _, pc := range []uint32{1, 2, 3} {
		d.Dispatch(itm.Message{Kind: itm.KindPCSample, PC: pc})
	}
	assert.Equal(t, []uint32{1, 2, 3}, order)
}

func TestFilewriterSteering(t *testing.T) {
	d := New(logging.Discard)
	var normalCalled, fileCalled bool
	d.On(itm.KindSoftware, func(itm.Message) { normalCalled = true })
	d.EnableFilewriter(func(itm.Message) { fileCalled = true })

	d.Dispatch(itm.Message{Kind: itm.KindSoftware, SrcAddr: FilewriterChannel})
	assert.True(t, fileCalled)
	assert.False(t, normalCalled)

	d.DisableFilewriter()
	d.Dispatch(itm.Message{Kind: itm.KindSoftware, SrcAddr: FilewriterChannel})
	assert.True(t, normalCalled)
}
