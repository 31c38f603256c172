// ABOUTME: Decoder for claude CLI stream-json output lines
// ABOUTME: Maps assistant and result records onto engine events

package claudecli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/2389/parley-gateway/internal/engine"
)

// streamLine is the subset of a stream-json line we care about.
type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   *streamMessage  `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	TotalCost float64         `json:"total_cost_usd,omitempty"`
	Usage     *streamUsage    `json:"usage,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type streamUsage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheReadTokens  int64 `json:"cache_read_input_tokens"`
	CacheWriteTokens int64 `json:"cache_creation_input_tokens"`
}

// parseLine converts a single stream-json line into an event.
// Blank lines yield (nil, nil).
func parseLine(line []byte) (*engine.Event, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var sl streamLine
	if err := json.Unmarshal([]byte(trimmed), &sl); err != nil {
		return nil, fmt.Errorf("malformed stream line: %w", err)
	}
	if sl.Type == "" {
		return nil, fmt.Errorf("malformed stream line: missing type")
	}

	ev := &engine.Event{
		Kind:      sl.Type,
		SessionID: sl.SessionID,
		Raw:       json.RawMessage(trimmed),
	}

	// Older CLI builds put the init session id under data.
	if ev.SessionID == "" && len(sl.Data) > 0 {
		var data struct {
			SessionID string `json:"session_id"`
		}
		if json.Unmarshal(sl.Data, &data) == nil {
			ev.SessionID = data.SessionID
		}
	}

	switch sl.Type {
	case engine.KindAssistant:
		if sl.Message != nil {
			for _, block := range sl.Message.Content {
				if block.Type == "text" && block.Text != "" {
					ev.Fragments = append(ev.Fragments, block.Text)
				}
			}
		}
	case engine.KindResult:
		if sl.Usage != nil || sl.TotalCost > 0 {
			ev.Usage = &engine.Usage{CostUSD: sl.TotalCost}
			if sl.Usage != nil {
				ev.Usage.InputTokens = sl.Usage.InputTokens
				ev.Usage.OutputTokens = sl.Usage.OutputTokens
				ev.Usage.CacheReadTokens = sl.Usage.CacheReadTokens
				ev.Usage.CacheWriteTokens = sl.Usage.CacheWriteTokens
			}
		}
		if sl.IsError {
			ev.Err = &ResultError{Subtype: sl.Subtype, Message: sl.Result}
		}
	}

	return ev, nil
}

func isAuthMessage(msg string) bool {
	return strings.Contains(msg, "Invalid API key") || strings.Contains(msg, "Please run /login")
}
