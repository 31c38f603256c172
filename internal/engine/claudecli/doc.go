// Package claudecli implements engine.Engine on top of the claude CLI.
//
// Each Query starts one `claude --print --output-format stream-json` process,
// writes the prompt to its stdin, and converts every JSON line on stdout into
// an engine.Event:
//
//	{"type":"system","subtype":"init","session_id":"..."}      -> session id
//	{"type":"assistant","message":{"content":[{"type":"text"}]}} -> fragments
//	{"type":"result","session_id":"...","usage":{...}}           -> usage
//
// Resuming a conversation passes --resume with the continuation token. The
// CLI owns session state; this package only relays it.
package claudecli
