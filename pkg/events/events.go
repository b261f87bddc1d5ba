package events

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/sokovan/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventSessionStatusChanged     EventType = "session.status_changed"
	EventKernelStatusChanged      EventType = "kernel.status_changed"
	EventEndpointRouteListUpdated EventType = "endpoint.route_list_updated"
	EventAgentLost                EventType = "agent.lost"
	EventAgentEvicted             EventType = "agent.evicted"
)

// Event represents a cluster event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Emitter adapts a Broker to the narrow producer interfaces pkg/hooks and
// pkg/lifecycle depend on, so neither package needs to know about Event or
// Broker directly.
type Emitter struct {
	Broker *Broker
}

// EmitEndpointRouteListUpdated satisfies hooks.EventProducer.
func (e *Emitter) EmitEndpointRouteListUpdated(ctx context.Context, endpointID types.EndpointID) error {
	e.Broker.Publish(&Event{
		Type:    EventEndpointRouteListUpdated,
		Message: "endpoint route list updated",
		Metadata: map[string]string{
			"endpoint_id": string(endpointID),
		},
	})
	return nil
}

// EmitSessionStatusChanged records a session's transition to a new status.
func (e *Emitter) EmitSessionStatusChanged(sessionID types.SessionID, status types.SessionStatus, statusInfo string) {
	e.Broker.Publish(&Event{
		Type:    EventSessionStatusChanged,
		Message: "session status changed to " + string(status),
		Metadata: map[string]string{
			"session_id":  string(sessionID),
			"status":      string(status),
			"status_info": statusInfo,
		},
	})
}

// EmitAgentLost records an agent transitioning to LOST.
func (e *Emitter) EmitAgentLost(agentID types.AgentID) {
	e.Broker.Publish(&Event{
		Type:    EventAgentLost,
		Message: "agent marked lost",
		Metadata: map[string]string{
			"agent_id": string(agentID),
		},
	})
}

// EmitAgentEvicted records an agent's sessions having been force-terminated
// after exceeding the lost-agent dwell time.
func (e *Emitter) EmitAgentEvicted(agentID types.AgentID) {
	e.Broker.Publish(&Event{
		Type:    EventAgentEvicted,
		Message: "agent evicted after dwell timeout",
		Metadata: map[string]string{
			"agent_id": string(agentID),
		},
	})
}
