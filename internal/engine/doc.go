// Package engine defines the boundary between the gateway and a conversational
// engine that owns real session state.
//
// # Overview
//
// An Engine turns a prompt plus a Config into an ordered stream of Events.
// The gateway never inspects engine internals: everything it needs is carried
// by the explicit fields of Event.
//
//	events, err := eng.Query(ctx, "Hello", engine.Config{
//	    Instructions: "You are a helpful assistant.",
//	    TurnLimit:    10,
//	})
//	for ev := range events {
//	    if ev.Err != nil { ... }
//	    // ev.Fragments, ev.SessionID, ev.Kind
//	}
//
// # Stream Contract
//
//   - Events arrive in emission order on a channel the producer closes.
//   - A failure is delivered as the final event with Err set.
//   - Canceling ctx makes the producer stop and release its resources.
//   - Kind is engine specific; a terminal "result" event is optional.
//
// # Implementations
//
//   - claudecli: drives the claude CLI in stream-json mode
//   - demo: word-paced canned legal analysis for demos without a live engine
//   - enginetest: scripted fake for tests
package engine
