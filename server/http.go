package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/loonylabs-dev/react-native-offline-sync/internal/jwtauth"
	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

// Server wires the HTTP push/pull endpoints to a NoteStore.
type Server struct {
	Notes  *NoteStore
	Auth   *jwtauth.Authenticator
	Logger *slog.Logger
}

func New(notes *NoteStore, auth *jwtauth.Authenticator) *Server {
	return &Server{Notes: notes, Auth: auth, Logger: slog.Default()}
}

// Handler builds the ServeMux for the sync endpoints, gated by the JWT
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync/push", s.handlePush)
	mux.HandleFunc("POST /sync/pull", s.handlePull)
	return s.Auth.Middleware(mux)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := jwtauth.DeviceID(r.Context())

	var req transport.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	now := time.Now().UnixMilli()
	resp := transport.PushResponse{Success: true, Results: make([]transport.PushResult, len(req.Changes))}
	for i, change := range req.Changes {
		if err := s.Notes.UpsertFromPush(deviceID, change.Operation, change.RecordID, change.Data, now); err != nil {
			s.Logger.Error("server: push item failed", "record_id", change.RecordID, "error", err)
			errText := err.Error()
			resp.Results[i] = transport.PushResult{RecordID: change.RecordID, Error: &errText}
			continue
		}
		serverID := change.RecordID
		serverUpdatedAt := now
		resp.Results[i] = transport.PushResult{
			RecordID:        change.RecordID,
			ServerID:        &serverID,
			ServerUpdatedAt: &serverUpdatedAt,
		}
	}

	writeJSON(w, resp)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req transport.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	resp := transport.PullResponse{
		Timestamp: time.Now().UnixMilli(),
		Changes:   make(map[string]transport.TableChanges, len(req.Tables)),
	}
	for _, table := range req.Tables {
		if table != "notes" {
			continue
		}
		changes, err := s.Notes.ChangesSince(req.LastSyncAt)
		if err != nil {
			s.Logger.Error("server: pull failed", "table", table, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		resp.Changes[table] = changes
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
