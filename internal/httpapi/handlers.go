package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

type messageBody struct {
	Message string `json:"message"`
}

type scoresBody struct {
	ScoreA *int `json:"scoreA"`
	ScoreB *int `json:"scoreB"`
}

type healthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// Matches serves the /api/matches resource. Reads go straight to the store;
// writes go through the match's room so they serialize with websocket
// commands and reach every joined connection.
type Matches struct {
	hub   *hub.Hub
	store *store.Store
	log   *zap.Logger
}

func NewMatches(h *hub.Hub, s *store.Store, log *zap.Logger) *Matches {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matches{hub: h, store: s, log: log.Named("http")}
}

func (m *Matches) List(w http.ResponseWriter, r *http.Request) {
	m.list(w, r, store.ListOptions{})
}

func (m *Matches) ListLive(w http.ResponseWriter, r *http.Request) {
	m.list(w, r, store.ListOptions{LiveOnly: true})
}

func (m *Matches) list(w http.ResponseWriter, r *http.Request, opts store.ListOptions) {
	matches, err := m.store.List(r.Context(), opts)
	if err != nil {
		m.fail(w, "list matches", err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (m *Matches) Get(w http.ResponseWriter, r *http.Request) {
	match, err := m.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		m.fail(w, "get match", err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (m *Matches) Create(w http.ResponseWriter, r *http.Request) {
	var init engine.MatchInit
	if !decode(w, r, &init) {
		return
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", init.Title},
		{"teamA", init.TeamA},
		{"teamB", init.TeamB},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "missing required fields: " + strings.Join(missing, ", ")})
		return
	}

	match, err := m.store.CreateDefault(r.Context(), init)
	if err != nil {
		m.fail(w, "create match", err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

// Update merges the body into the match and pushes match-data to its room.
func (m *Matches) Update(w http.ResponseWriter, r *http.Request) {
	var patch engine.MatchPatch
	if !decode(w, r, &patch) {
		return
	}
	m.command(w, r, "update match", engine.Command{Type: engine.CmdPatchMatch, Patch: patch}, http.StatusOK)
}

func (m *Matches) UpdateScores(w http.ResponseWriter, r *http.Request) {
	var body scoresBody
	if !decode(w, r, &body) {
		return
	}
	if body.ScoreA == nil || body.ScoreB == nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "scoreA and scoreB are required"})
		return
	}
	m.command(w, r, "update scores", engine.Command{Type: engine.CmdUpdateScores, ScoreA: *body.ScoreA, ScoreB: *body.ScoreB}, http.StatusOK)
}

func (m *Matches) AddEvent(w http.ResponseWriter, r *http.Request) {
	var in engine.EventInput
	if !decode(w, r, &in) {
		return
	}
	if in.CreatedBy == "" {
		in.CreatedBy = "api"
	}
	m.command(w, r, "add event", engine.Command{Type: engine.CmdAddEvent, Event: in}, http.StatusOK)
}

func (m *Matches) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := m.hub.Do(r.Context(), id, func(rm *room.Room) error {
		return rm.Delete(r.Context())
	})
	if err != nil {
		m.fail(w, "delete match", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Match deleted successfully"})
}

func (m *Matches) command(w http.ResponseWriter, r *http.Request, action string, cmd engine.Command, status int) {
	id := chi.URLParam(r, "id")
	var res room.Result
	err := m.hub.Do(r.Context(), id, func(rm *room.Room) error {
		var err error
		res, err = rm.Do(r.Context(), cmd, nil)
		return err
	})
	if err != nil {
		m.fail(w, action, err)
		return
	}
	writeJSON(w, status, res.Match)
}

func (m *Matches) fail(w http.ResponseWriter, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrEmptyLog):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateMatch):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}
	if status == http.StatusInternalServerError {
		m.log.Error("request failed", zap.String("action", action), zap.Error(err))
	}
	writeJSON(w, status, messageBody{Message: room.ErrorMessage(action, err)})
}

// Health reports process liveness and whether the store answers.
func Health(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := healthBody{Status: "OK", Timestamp: s.Now().Format(time.RFC3339Nano), Database: "connected"}
		if err := s.Ping(ctx); err != nil {
			body.Database = "disconnected"
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, messageBody{Message: "Route not found"})
}

func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, messageBody{Message: "Method not allowed"})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
