// Package server exposes the command registry over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"nova_bridge/pkg/bridge"
	"nova_bridge/pkg/commands"
	"nova_bridge/pkg/logging"
	"nova_bridge/pkg/processor"
)

const (
	defaultMaxMessageBytes = 1 << 20
	maxEscapedBytes        = 6
)

// Commands is the part of the command registry the server needs.
type Commands interface {
	Dispatch(ctx context.Context, name string, input string) bridge.Response
	GetHandler(name string) (commands.Handler, bool)
	Handlers() []commands.Handler
}

// Options configure the HTTP handler.
type Options struct {
	MaxMessageBytes int64
	AllowedOrigin   string
	Logger          *slog.Logger
}

type handler struct {
	cmds     Commands
	maxBytes int64
	logger   *slog.Logger
}

type invokeRequest struct {
	Message string `json:"message"`
}

type invokeResponse struct {
	OK    bool           `json:"ok"`
	Data  *string        `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
	Kind  processor.Kind `json:"kind,omitempty"`
}

type commandResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewHandler builds the HTTP API:
//
//	POST /invoke/{command}  {"message": "..."}
//	GET  /commands
//	GET  /healthz
func NewHandler(cmds Commands, opts Options) http.Handler {
	h := &handler{
		cmds:     cmds,
		maxBytes: opts.MaxMessageBytes,
		logger:   opts.Logger,
	}
	if h.maxBytes <= 0 {
		h.maxBytes = defaultMaxMessageBytes
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke/{command}", h.handleInvoke)
	mux.HandleFunc("GET /commands", h.handleCommands)
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	return chainMiddlewares(mux,
		withRecover(h.logger),
		withLogging(h.logger),
		withRequestID,
		withCORS(opts.AllowedOrigin),
	)
}

func (h *handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")
	if _, ok := h.cmds.GetHandler(name); !ok {
		writeFailure(w, http.StatusNotFound, processor.KindInvalidInput, "unknown command: "+name)
		return
	}

	// JSON escaping grows a byte to at most six (\u0001), plus envelope
	// overhead. The decoded message length below is the size rule.
	limit := maxEscapedBytes*h.maxBytes + 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusBadRequest, processor.KindInvalidInput,
				fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		writeFailure(w, http.StatusBadRequest, processor.KindInvalidInput, "invalid JSON body")
		return
	}
	if int64(len(req.Message)) > h.maxBytes {
		writeFailure(w, http.StatusBadRequest, processor.KindInvalidInput,
			fmt.Sprintf("message exceeds %d bytes", h.maxBytes))
		return
	}

	resp := h.cmds.Dispatch(r.Context(), name, req.Message)
	if !resp.OK() {
		writeFailure(w, http.StatusOK, resp.Failure.Kind, resp.Failure.Reason)
		return
	}
	text := resp.Text
	writeJSON(w, http.StatusOK, invokeResponse{OK: true, Data: &text})
}

func (h *handler) handleCommands(w http.ResponseWriter, r *http.Request) {
	handlers := h.cmds.Handlers()
	out := make([]commandResponse, 0, len(handlers))
	for _, c := range handlers {
		out = append(out, commandResponse{Name: c.Name(), Description: c.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, kind processor.Kind, reason string) {
	writeJSON(w, status, invokeResponse{OK: false, Error: reason, Kind: kind})
}
