/*
Package events provides an in-memory event broker for pub/sub messaging
between the scheduling core's internal packages and external observers
(the API layer, the app proxy, audit logging).

The broker itself is topic-agnostic: every published Event is broadcast to
every subscriber over a buffered channel, and a full subscriber buffer
drops events rather than blocking the publisher. Ordering and delivery are
best-effort, matching the rest of this module's tolerance for eventual
consistency over strict synchronization.

# Event Types

Session Events:
  - session.status_changed: published when the manager moves a session to
    PREPARING or TERMINATED (including agent-lost eviction), and when a
    kernel event from an agent changes the session's derived status. The
    scheduling tick's move to SCHEDULED and pending-timeout cancellation
    do not publish it. Metadata carries session_id, status, and status_info.

Kernel Events:
  - kernel.status_changed: the event type for kernel-level status
    transitions. Emitter has no method for it and nothing in this module
    publishes it.

Endpoint Events:
  - endpoint.route_list_updated: published by the transition hook registry's RUNNING hook whenever a
    session belonging to an inference endpoint enters RUNNING, so the app
    proxy can refresh its route table.

Agent Events:
  - agent.lost: published by Emitter.EmitAgentLost. pkg/health's
    AgentMonitor does not publish events, and nothing in this module calls
    EmitAgentLost.
  - agent.evicted: published when pkg/lifecycle's Sweeper force-terminates
    a lost agent's sessions after the dwell timeout elapses.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventSessionStatusChanged:
				handleStatusChange(event)
			}
		}
	}()

Emitter adapts a Broker to the narrow producer interfaces other packages
depend on (hooks.EventProducer, lifecycle's sweep/tick callers) so those
packages never import events.Event or events.Broker directly:

	emitter := &events.Emitter{Broker: broker}
	registry := hooks.NewRegistry(
		&hooks.RunningTransitionHook{Events: emitter, ...},
		&hooks.TerminatedTransitionHook{Events: emitter, ...},
	)

# Limitations

In-memory only: no persistence, no replay, no delivery guarantees. A
subscriber that falls behind silently drops events rather than
backpressuring the publisher. Callers needing durable delivery (audit
trails, billing) should subscribe and write through to storage themselves.
*/
package events
