// ABOUTME: HTTP handlers for running named command templates
// ABOUTME: Each command starts a fresh conversation with template instructions

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/2389/parley-gateway/internal/auth"
	"github.com/2389/parley-gateway/internal/commands"
	"github.com/2389/parley-gateway/internal/conversation"
)

// CommandRequest is the JSON request body for POST /api/command.
type CommandRequest struct {
	Command   string `json:"command"`
	Arguments string `json:"arguments,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandResponse is the JSON response for POST /api/command.
type CommandResponse struct {
	RequestID     string `json:"request_id"`
	Command       string `json:"command"`
	Result        string `json:"result"`
	ResumeSession string `json:"resume_session,omitempty"`
}

// ListCommandsResponse is the JSON response for GET /api/commands.
type ListCommandsResponse struct {
	Commands []string `json:"commands"`
}

// commandText is the user turn sent alongside the template instructions.
func commandText(name, args string) string {
	return strings.TrimSpace("Run command: " + name + " " + args)
}

// handleCommand handles POST /api/command.
func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			g.sendJSONError(w, http.StatusBadRequest, "request body is required")
			return
		}
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := strings.TrimSpace(req.Command)
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "command is required")
		return
	}

	instructions, err := g.commands.Render(name, req.Arguments)
	switch {
	case errors.Is(err, commands.ErrInvalidName):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, commands.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "command '"+name+"' not found")
		return
	case err != nil:
		g.logger.Error("failed to load command", "command", name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	env, err := g.command.Handle(r.Context(), &conversation.QueryRequest{
		Text:            commandText(name, req.Arguments),
		ClientRequestID: req.RequestID,
		Instructions:    instructions,
		Principal:       auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		g.sendQueryError(w, r, err)
		return
	}

	g.sendJSON(w, http.StatusOK, CommandResponse{
		RequestID:     env.RequestID,
		Command:       name,
		Result:        env.Response,
		ResumeSession: env.SessionID,
	})
}

// handleListCommands handles GET /api/commands.
func (g *Gateway) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	names, err := g.commands.List()
	if err != nil {
		g.logger.Error("failed to list commands", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, ListCommandsResponse{Commands: names})
}
