package tui

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/engine"
)

type chanSender chan tea.Msg

func (c chanSender) Send(msg tea.Msg) { c <- msg }

func receive(t *testing.T, c chanSender) tea.Msg {
	t.Helper()
	select {
	case msg := <-c:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message forwarded")
		return nil
	}
}

func TestReporterForwardsInOrder(t *testing.T) {
	sent := make(chanSender, 16)
	r := NewReporter(sent)
	defer r.Close()

	page := &engine.PageResult{PageID: 1}
	r.PageStarted(1, "edges")
	r.ProcessorStarted(1, "a", "constant")
	r.ProcessorFinished(1, engine.ProcessorResult{NodeID: "a"})
	r.PageFinished(page)
	r.Status("title", "msg", 0.5)
	r.ShowError(errors.New("bad"))
	r.Done(nil, nil)

	require.Equal(t, PageStartedMsg{PageID: 1, Pipeline: "edges"}, receive(t, sent))
	require.Equal(t, ProcessorStartedMsg{PageID: 1, NodeID: "a", Service: "constant"}, receive(t, sent))
	require.Equal(t, ProcessorFinishedMsg{PageID: 1, Result: engine.ProcessorResult{NodeID: "a"}}, receive(t, sent))
	require.Equal(t, PageFinishedMsg{Result: page}, receive(t, sent))
	require.Equal(t, StatusMsg{Title: "title", Message: "msg", Progress: 0.5}, receive(t, sent))
	require.IsType(t, ErrorMsg{}, receive(t, sent))
	require.Equal(t, DoneMsg{}, receive(t, sent))
}

func TestReporterRunLaterGoesThroughProgram(t *testing.T) {
	sent := make(chanSender, 1)
	r := NewReporter(sent)
	defer r.Close()

	ran := make(chan struct{})
	r.RunLater(func() { close(ran) })

	msg, ok := receive(t, sent).(runMsg)
	require.True(t, ok)
	m := NewModel("", nil, nil)
	_, _ = m.Update(msg)

	select {
	case <-ran:
	default:
		t.Fatal("callback did not run in Update")
	}
}

func TestReporterDetachedRunsInline(t *testing.T) {
	sent := make(chanSender, 1)
	r := NewReporter(sent)
	r.Detach()

	ran := make(chan struct{})
	r.RunLater(func() { close(ran) })
	r.Status("t", "m", 1)
	r.Close()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not run after detach")
	}
	require.Empty(t, sent)
}

func TestReporterRunsCallbacksDroppedByAQuitProgram(t *testing.T) {
	program := tea.NewProgram(NewModel("", nil, nil), tea.WithInput(nil), tea.WithOutput(io.Discard))
	r := NewReporter(program)

	exited := make(chan error, 1)
	go func() {
		_, err := program.Run()
		exited <- err
	}()
	r.Done(nil, nil)
	select {
	case err := <-exited:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("program did not quit")
	}

	var runs atomic.Int32
	r.RunLater(func() { runs.Add(1) })
	r.Detach()
	r.Close()

	require.Equal(t, int32(1), runs.Load())
}

func TestRunMsgRunsOnce(t *testing.T) {
	runs := 0
	msg := runMsg{fn: func() { runs++ }, claimed: &atomic.Bool{}}
	msg.run()
	msg.run()
	require.Equal(t, 1, runs)
}
