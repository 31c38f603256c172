// Package conversation implements the conversation gateway: one query in, one
// engine invocation, one response envelope out.
//
// # Overview
//
// A Service is bound to one engine and one Profile (instructions plus turn
// limit). The HTTP layer constructs one Service per profile at startup and
// hands requests to it; the Service keeps no state between requests.
//
//	svc := conversation.New(eng, conversation.Profile{
//	    Name:         "chat",
//	    Instructions: "You are a helpful assistant.",
//	    TurnLimit:    10,
//	}, conversation.Options{Logger: logger})
//
//	env, err := svc.Handle(ctx, &conversation.QueryRequest{Text: "Hello"})
//
// # Continuation Tokens
//
// Conversations live in the engine and are addressed by an opaque token. A
// request that carries a token asks the engine to resume that conversation,
// and the envelope echoes the same token back unchanged. A request without
// one gets whatever session identifier the engine reported last, or nothing
// if it never reported one.
//
// # Handle and Stream
//
// Handle buffers the whole response and fails atomically: an engine error
// anywhere in the stream discards the text gathered so far. Stream forwards
// each fragment to a Sink as it arrives and reports the resolved token at
// the end.
//
// # Errors
//
//   - ErrInvalidArgument: blank query or negative turn limit; the engine is never called
//   - ErrEngineFailure: matched by *EngineError, which carries the request id and cause
//
// # Journal and Metrics
//
// Options.Journal receives one store.Exchange per request, success or not.
// Journal writes are best effort and only logged on failure. Options.Metrics
// receives request outcomes and latency.
package conversation
