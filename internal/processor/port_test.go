package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

func TestConnectRejectsTypeMismatchWithoutSideEffects(t *testing.T) {
	t.Parallel()

	src := newSource(1)
	sink := newImageSink()
	out, in := src.Output("out"), sink.Input("in")

	err := out.ConnectTo(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, divaerrors.ErrTypeMismatch)

	var portErr *divaerrors.PortError
	require.ErrorAs(t, err, &portErr)
	assert.Equal(t, "source.out", portErr.From)

	assert.Equal(t, PortUnconnected, out.State())
	assert.Equal(t, PortUnconnected, in.State())
	assert.Empty(t, out.Connections())
	assert.Empty(t, in.Connections())
}

func TestConnectRejectsSecondUpstream(t *testing.T) {
	t.Parallel()

	first, second := newSource(1), newSource(2)
	comb := newCombiner()
	in := comb.Input("a")

	require.NoError(t, first.Output("out").ConnectTo(in))
	err := in.ConnectTo(second.Output("out"))
	assert.ErrorIs(t, err, divaerrors.ErrCapacityExceeded)

	assert.Same(t, first.Output("out"), in.Upstream())
	assert.Empty(t, second.Output("out").Connections())
	assert.Equal(t, PortUnconnected, second.Output("out").State())
}

func TestConnectRejectsSameDirection(t *testing.T) {
	t.Parallel()

	comb := newCombiner()
	err := comb.Input("a").ConnectTo(comb.Input("b"))
	assert.ErrorIs(t, err, divaerrors.ErrPortDirection)

	err = comb.Input("a").ConnectTo(nil)
	assert.ErrorIs(t, err, divaerrors.ErrPortDirection)
}

func TestConnectIsIdempotentForSamePair(t *testing.T) {
	t.Parallel()

	src, comb := newSource(1), newCombiner()
	require.NoError(t, src.Output("out").ConnectTo(comb.Input("a")))
	require.NoError(t, comb.Input("a").ConnectTo(src.Output("out")))
	assert.Len(t, src.Output("out").Connections(), 1)
}

func TestOutputFanOutFlipsAllInputsTogether(t *testing.T) {
	t.Parallel()

	src := newSource(1)
	out := src.Output("out")
	sinks := []*combiner{newCombiner(), newCombiner(), newCombiner()}

	events := make([]<-chan Event, len(sinks))
	for i, sink := range sinks {
		require.NoError(t, out.ConnectTo(sink.Input("a")))
		ch, cancel := sink.Subscribe(8)
		t.Cleanup(cancel)
		events[i] = ch
	}

	for _, sink := range sinks {
		assert.Equal(t, PortWaiting, sink.Input("a").State())
	}
	assert.Equal(t, PortWaiting, out.State())

	require.NoError(t, out.SetOutput("payload"))

	for i, sink := range sinks {
		assert.Equal(t, PortReady, sink.Input("a").State())
		v, ok := sink.Input("a").Value()
		require.True(t, ok)
		assert.Equal(t, "payload", v)

		ev := <-events[i]
		assert.Equal(t, "a", ev.Port)
		assert.Equal(t, PortReady, ev.State)
	}
}

func TestSetOutputRejectsInputs(t *testing.T) {
	t.Parallel()

	err := newCombiner().Input("a").SetOutput(1)
	assert.ErrorIs(t, err, divaerrors.ErrPortDirection)
}

func TestResetOutputReturnsToWaitingOrUnconnected(t *testing.T) {
	t.Parallel()

	src, comb := newSource(1), newCombiner()
	out := src.Output("out")

	require.NoError(t, out.SetOutput(1))
	assert.Equal(t, PortReady, out.State())
	out.ResetOutput()
	assert.Equal(t, PortUnconnected, out.State())

	require.NoError(t, out.ConnectTo(comb.Input("a")))
	require.NoError(t, out.SetOutput(1))
	out.ResetOutput()
	assert.Equal(t, PortWaiting, out.State())
	assert.Equal(t, PortWaiting, comb.Input("a").State())
}

func TestDisconnectClearsBothSides(t *testing.T) {
	t.Parallel()

	src, comb := newSource(1), newCombiner()
	out, in := src.Output("out"), comb.Input("a")
	require.NoError(t, out.ConnectTo(in))
	require.NoError(t, out.SetOutput(1))

	in.DisconnectAll()
	assert.Equal(t, PortUnconnected, in.State())
	assert.Empty(t, out.Connections())
	assert.Equal(t, PortReady, out.State())
}

func TestSubscribeCountsDroppedEvents(t *testing.T) {
	t.Parallel()

	src := newSource(1)
	_, cancel := src.Subscribe(1)
	defer cancel()

	out := src.Output("out")
	require.NoError(t, out.SetOutput(1))
	out.ResetOutput()
	require.NoError(t, out.SetOutput(2))

	assert.Equal(t, int64(2), src.Dropped())
}
