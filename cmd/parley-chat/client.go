// ABOUTME: Gateway API client for parley-chat
// ABOUTME: Posts queries as JSON and parses SSE frames from the streaming endpoint

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// QueryRequest is the request body for the query endpoints.
type QueryRequest struct {
	Query         string `json:"query"`
	ResumeSession string `json:"resume_session,omitempty"`
}

// QueryResponse is the envelope returned by /api/chat and /api/legal-query.
type QueryResponse struct {
	RequestID      string `json:"request_id"`
	SessionID      string `json:"session_id,omitempty"`
	Query          string `json:"query"`
	Response       string `json:"response"`
	IsContinuation bool   `json:"is_continuation"`
}

// CommandRequest is the request body for /api/command.
type CommandRequest struct {
	Command   string `json:"command"`
	Arguments string `json:"arguments,omitempty"`
}

// CommandResponse is the result of a command template run.
type CommandResponse struct {
	RequestID     string `json:"request_id"`
	Command       string `json:"command"`
	Result        string `json:"result"`
	ResumeSession string `json:"resume_session,omitempty"`
}

// StreamFrame is one data frame from /api/legal-query-stream.
type StreamFrame struct {
	Text      string `json:"text,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// errorResponse is the JSON body of non-200 responses.
type errorResponse struct {
	Detail string `json:"detail"`
}

// ErrStreamIncomplete is returned when the stream ends without a done frame.
var ErrStreamIncomplete = errors.New("stream ended without a done frame")

// GatewayClient communicates with the parley-gateway HTTP API.
type GatewayClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGatewayClient creates a new gateway client. An empty token sends no auth header.
func NewGatewayClient(baseURL, token string) *GatewayClient {
	return &GatewayClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}
}

func (g *GatewayClient) post(ctx context.Context, path string, req any, accept string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, handleErrorResponse(resp)
	}
	return resp, nil
}

// Query sends a buffered query to path and decodes the envelope.
func (g *GatewayClient) Query(ctx context.Context, path string, req QueryRequest) (*QueryResponse, error) {
	resp, err := g.post(ctx, path, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// RunCommand runs a named command template on the gateway.
func (g *GatewayClient) RunCommand(ctx context.Context, req CommandRequest) (*CommandResponse, error) {
	resp, err := g.post(ctx, "/api/command", req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

// Stream sends a streaming legal query. onText is called for each fragment;
// the done frame is returned on success.
func (g *GatewayClient) Stream(ctx context.Context, req QueryRequest, onText func(string)) (*StreamFrame, error) {
	resp, err := g.post(ctx, "/api/legal-query-stream", req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseSSEStream(ctx, resp.Body, onText)
}

// handleErrorResponse extracts the detail message from non-200 responses.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		return fmt.Errorf("gateway error (%d): %s", resp.StatusCode, errResp.Detail)
	}

	return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// parseSSEStream reads data frames until a done or error frame.
func parseSSEStream(ctx context.Context, body io.Reader, onText func(string)) (*StreamFrame, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			var frame StreamFrame
			if err := json.Unmarshal([]byte(strings.Join(dataLines, "\n")), &frame); err != nil {
				return nil, fmt.Errorf("parsing frame: %w", err)
			}
			dataLines = nil

			switch {
			case frame.Error != "":
				return nil, fmt.Errorf("gateway error: %s", frame.Error)
			case frame.Done:
				return &frame, nil
			case frame.Text != "" && onText != nil:
				onText(frame.Text)
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SSE stream: %w", err)
	}
	return nil, ErrStreamIncomplete
}
