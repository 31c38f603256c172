// Package gateway orchestrates the parley-gateway server components.
//
// # Overview
//
// The gateway package wires configuration into running servers. It builds the
// engine (claude CLI or demo), one conversation.Service per profile, the
// optional exchange journal, metrics, and JWT auth, then serves them over
// HTTP and, optionally, a gRPC health endpoint.
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx)
//
// # HTTP API
//
//   - POST /api/chat - Buffered query on the chat profile
//   - POST /api/legal-query - Buffered query on the legal profile
//   - POST /api/legal-query-stream - Streaming query on the legal profile (SSE)
//   - POST /api/command - Run a markdown command template in a fresh conversation
//   - GET /api/commands - Available command template names
//   - GET /api/exchanges - Recent journaled exchanges
//   - GET /api/exchanges/{request_id} - One journaled exchange
//   - GET /api/stats/usage - Aggregated token usage
//   - GET /health - Liveness check
//   - GET /health/ready - Engine readiness check
//
// Errors are JSON objects with a single "detail" field. Blank queries get
// 400, engine failures 500.
//
// # Streaming
//
// The streaming endpoint writes one "data: <json>\n\n" frame per fragment:
//
//	data: {"text":"Contract "}
//	data: {"text":"review "}
//	data: {"done":true,"request_id":"...","session_id":"..."}
//
// A failure ends the stream with {"error": "..."} instead of the done frame.
//
// # Listeners
//
// Without Tailscale the HTTP server binds server.http_addr. With Tailscale
// a tsnet node is started and the API is served on :80, on :443 with
// tailnet certificates, or publicly through Funnel.
//
// # Shutdown
//
// Run blocks until its context is canceled, then stops the HTTP server, marks
// the gRPC health service NOT_SERVING, stops gRPC, and closes the journal
// within server.shutdown_timeout.
package gateway
