package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus()

	var received []*Event
	bus.Subscribe(DecisionExecuted, func(e *Event) {
		received = append(received, e)
	})

	bus.Emit(DecisionExecuted, "test", map[string]interface{}{"decision_id": "d-1"})
	bus.Emit(DecisionFailed, "test", nil)

	require.Len(t, received, 1)
	assert.Equal(t, DecisionExecuted, received[0].Type)
	assert.Equal(t, "test", received[0].Module)
	assert.Equal(t, "d-1", received[0].Data["decision_id"])
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	count := 0
	bus.SubscribeAll(func(e *Event) {
		count++
	})

	bus.Emit(AgentCreated, "test", nil)
	bus.Emit(AgentEmergency, "test", nil)
	bus.Emit(DecisionCancelled, "test", nil)

	assert.Equal(t, 3, count)
}

func TestBus_UnsubscribeAll(t *testing.T) {
	bus := NewBus()

	count := 0
	unsubscribe := bus.SubscribeAll(func(e *Event) { count++ })

	bus.Emit(AgentCreated, "test", nil)
	unsubscribe()
	bus.Emit(AgentCreated, "test", nil)

	assert.Equal(t, 1, count)
}

func TestBus_MultipleSubscribersSameType(t *testing.T) {
	bus := NewBus()

	first, second := false, false
	bus.Subscribe(AgentError, func(e *Event) { first = true })
	bus.Subscribe(AgentError, func(e *Event) { second = true })

	bus.Emit(AgentError, "test", nil)

	assert.True(t, first)
	assert.True(t, second)
}

func TestEventData_Types(t *testing.T) {
	t.Run("decision data selects lifecycle event", func(t *testing.T) {
		d := &DecisionEventData{DecisionID: "d-1", Event: DecisionExecuted}
		assert.Equal(t, DecisionExecuted, d.EventType())
	})

	t.Run("decision data defaults to created", func(t *testing.T) {
		d := &DecisionEventData{DecisionID: "d-1"}
		assert.Equal(t, DecisionCreated, d.EventType())
	})

	t.Run("emergency data", func(t *testing.T) {
		d := &AgentEmergencyData{AgentID: "a-1", Reason: "manual", CancelledCount: 2}
		assert.Equal(t, AgentEmergency, d.EventType())
	})
}
