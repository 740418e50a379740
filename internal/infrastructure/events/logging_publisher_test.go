package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/ports"
)

func newLogger(t *testing.T, buf *bytes.Buffer) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Writer: buf, Level: "info", Component: "publisher"})
	require.NoError(t, err)
	return log
}

func TestLoggingPublisherIncludesCorrelationID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewLoggingPublisher(newLogger(t, buf))

	ctx := ports.WithCorrelationID(context.Background(), "abc-123")
	err := publisher.Publish(ctx, ports.NewEvent(ports.EventPageSelected, ports.FieldPageID, 4))
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "engine event", entry["message"])
	require.Equal(t, ports.EventPageSelected, entry["event_type"])
	require.Equal(t, "abc-123", entry["correlation_id"])
	require.Equal(t, float64(4), entry["page_id"])
}

func TestLoggingPublisherLogsChattyEventsAtDebug(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewLoggingPublisher(newLogger(t, buf))

	require.NoError(t, publisher.Publish(context.Background(), ports.NewEvent(ports.EventProcessorStateChanged)))
	require.Empty(t, strings.TrimSpace(buf.String()))
}

func TestLoggingPublisherInvokesSubscribers(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	publisher := NewLoggingPublisher(newLogger(t, buf))

	var got []string
	sub, err := publisher.Subscribe(ports.EventPageRemoved, func(_ context.Context, ev ports.DomainEvent) error {
		got = append(got, "typed")
		return nil
	})
	require.NoError(t, err)
	_, err = publisher.Subscribe(Wildcard, func(_ context.Context, ev ports.DomainEvent) error {
		got = append(got, "wildcard:"+ev.EventType())
		return errors.New("ignored")
	})
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), ports.NewEvent(ports.EventPageRemoved, ports.FieldPageID, 1)))
	require.Equal(t, []string{"typed", "wildcard:page.removed"}, got)
	require.Contains(t, buf.String(), "event handler failed")

	sub.Unsubscribe()
	got = nil
	require.NoError(t, publisher.Publish(context.Background(), ports.NewEvent(ports.EventPageRemoved)))
	require.Equal(t, []string{"wildcard:page.removed"}, got)
}

func TestNilPublisherIsSafe(t *testing.T) {
	t.Parallel()

	var publisher *LoggingPublisher
	require.NoError(t, publisher.Publish(context.Background(), ports.NewEvent(ports.EventPageRemoved)))
	sub, err := publisher.Subscribe(ports.EventPageRemoved, func(context.Context, ports.DomainEvent) error { return nil })
	require.NoError(t, err)
	sub.Unsubscribe()
}
