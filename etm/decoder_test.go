package etm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swotrace/logging"
)

func sync(b ...byte) []byte {
	seq := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xFF}
	return append(seq, b...)
}

func TestStartsUnsynced(t *testing.T) {
	d := New(logging.Discard)
	assert.False(t, d.Synced())
}

func TestPumpSyncsOnAsyncSequence(t *testing.T) {
	d := New(logging.Discard)
	var reports []Report
	err := d.Pump(sync(), nil, func(r Report) { reports = append(reports, r) }, context.Background())
	require.NoError(t, err)
	assert.True(t, d.Synced())
	require.Len(t, reports, 1)
}

func TestDecodedPacketReportsChangedField(t *testing.T) {
	d := New(logging.Discard)
	d.ForceSync(true)

	var got State
	err := d.Pump([]byte{0x00, 0xAB}, func(s State) { got = s }, nil, context.Background())
	require.NoError(t, err)
	assert.True(t, got.Has(FieldAddress))
	assert.False(t, got.Has(FieldAtoms))
	assert.EqualValues(t, 0xAB, got.Address)
}

func TestUnknownSelectorIgnored(t *testing.T) {
	d := New(logging.Discard)
	d.ForceSync(true)

	called := false
	err := d.Pump([]byte{0x1F, 0x00}, func(State) { called = true }, nil, context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRingWrapForcesResync(t *testing.T) {
	d := New(logging.Discard)
	d.ForceSync(true)

	var reports []Report
	d.NotifyRingWrapped(func(r Report) { reports = append(reports, r) })
	assert.False(t, d.Synced())
	require.Len(t, reports, 1)
}

func TestPumpRespectsContextCancellation(t *testing.T) {
	d := New(logging.Discard)
	d.ForceSync(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Pump([]byte{0x00, 0x01, 0x00, 0x02}, nil, nil, ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
