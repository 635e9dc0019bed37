// Package event provides a pub-sub event bus that lets the parts of a
// contention-observation run report what they do without knowing who is
// listening.
//
// The coordinator publishes phase changes and failures, the gate publishes
// the negotiated capabilities, the resolver publishes the resolved target
// and the event filter publishes every monitor event it classifies. The
// report builder and the diagnostic logger subscribe.
//
// # Main Types
//
//   - [Event]: interface implemented by all events (EventType, Timestamp)
//   - [Bus]: synchronous, thread-safe dispatcher
//   - [Handler]: func(Event)
//
// # Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypePhaseChanged, func(e event.Event) {
//	    pc := e.(event.PhaseChangedEvent)
//	    fmt.Println(pc.From, "->", pc.To)
//	})
//	bus.Publish(event.NewPhaseChangedEvent("idle", "awaiting_initial_sync", ""))
//
// # Thread Safety
//
// Publish may be called from runtime threads delivering monitor events
// concurrently with the coordinator. Handlers run on the publishing
// goroutine and must be safe for concurrent use.
package event
