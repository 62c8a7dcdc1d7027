package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndDecode(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(CorrectionProgress, CorrectionProgressEvent{RequestID: "r1", Iteration: 2, Delta: 0.01, Currents: []float64{1, 2}})

	ev := <-ch
	assert.Equal(t, CorrectionProgress, ev.Name)
	p, err := DecodeAs[CorrectionProgressEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "r1", p.RequestID)
	assert.Equal(t, 2, p.Iteration)
	assert.Equal(t, []float64{1, 2}, p.Currents)
}

func TestDecodeEmpty(t *testing.T) {
	v, err := DecodeAs[CorrectionDoneEvent](Event{Name: CorrectionDone})
	require.NoError(t, err)
	assert.Equal(t, CorrectionDoneEvent{}, v)
}

func TestSlowSubscriberDrops(t *testing.T) {
	h := NewEventHub()
	var dropped int
	h.OnDrop = func() { dropped++ }
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(SessionSuperseded, SessionSupersededEvent{SessionID: "s"})
	}
	assert.Equal(t, 5, dropped)
	assert.Len(t, ch, subscriberBuffer)

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	assert.Zero(t, h.Subscribers())
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	assert.NotPanics(t, func() { h.Publish(CorrectionDone, nil) })
}
