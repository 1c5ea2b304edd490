package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/events"
	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/nidhogg/xoxo/internal/relation"
	"github.com/nidhogg/xoxo/internal/store"
	"go.uber.org/zap"
)

// Conversations is the read side of the conversation driver.
type Conversations interface {
	Snapshot() []*conversation.PartnerState
	State(partnerID string) (*conversation.PartnerState, bool)
	Preview(partnerID string) (string, conversation.Position)
}

// Affinities lists relationship strengths.
type Affinities interface {
	Affinities(ctx context.Context, self string) ([]relation.Affinity, error)
}

// TurnFeed returns recently published turns and tails new ones.
type TurnFeed interface {
	Recent(ctx context.Context, self string, n int64) ([]*events.TurnEvent, error)
	Subscribe(ctx context.Context, self, lastID string) <-chan *events.TurnEvent
}

// ConversationLister lists persisted conversations.
type ConversationLister interface {
	ListConversations(ctx context.Context, self string) ([]store.ConversationSummary, error)
}

// Transcripts reads conversation logs.
type Transcripts interface {
	Read(partnerID string) (string, error)
}

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the handler's collaborators. Optional ones may be nil.
type Deps struct {
	Profile       *persona.Profile
	Card          *a2a.AgentCard
	Roster        *conversation.Roster
	Conversations Conversations
	A2A           *a2a.Server
	Affinities    Affinities
	Turns         TurnFeed
	Transcripts   Transcripts
	History       ConversationLister
	Checks        map[string]Pinger
	Metrics       interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps    Deps
	started time.Time
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{deps: deps, started: time.Now(), logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.deps.Metrics != nil {
		r.Use(h.deps.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	if h.deps.A2A != nil {
		// Agents post to the public URL root, which is also where the card lives.
		r.Post("/", h.deps.A2A.HandleRPC)
		r.Mount("/a2a", h.deps.A2A.Routes())
		r.Get(a2a.WellKnownCardPath, h.deps.A2A.ServeCard)
	}
	if h.deps.Metrics != nil {
		r.Handle("/metrics", h.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/persona", h.getPersona)
		r.Get("/partners", h.listPartners)
		r.Post("/partners", h.addPartner)
		r.Get("/partners/{id}", h.getPartner)
		r.Get("/partners/{id}/next", h.previewNext)
		r.Get("/partners/{id}/transcript", h.getTranscript)
		r.Get("/matches", h.listMatches)
		r.Get("/turns", h.listTurns)
		r.Get("/turns/stream", h.streamTurns)
		r.Get("/conversations", h.listConversations)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.deps.Checks))
	for name, p := range h.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":  state,
		"persona": h.deps.Profile.Name,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"roster":  h.deps.Roster.Len(),
		"deps":    deps,
	})
}

func (h *Handler) getPersona(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Card)
}

// partnerSummary is a roster entry joined with its conversation state.
type partnerSummary struct {
	conversation.Partner
	MessageCount int       `json:"message_count"`
	Stage        string    `json:"stage"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request) {
	states := make(map[string]*conversation.PartnerState)
	for _, s := range h.deps.Conversations.Snapshot() {
		states[s.PartnerID] = s
	}

	partners := h.deps.Roster.Partners()
	out := make([]partnerSummary, 0, len(partners))
	for _, p := range partners {
		sum := partnerSummary{Partner: p, Stage: conversation.SelectStage(0).String()}
		if s, ok := states[p.ID]; ok {
			sum.MessageCount = s.MessageCount
			sum.Stage = s.Position().String()
			sum.UpdatedAt = s.UpdatedAt
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addPartner(w http.ResponseWriter, r *http.Request) {
	var p conversation.Partner
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if p.ID == "" || p.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and url are required"})
		return
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	added := h.deps.Roster.Merge([]conversation.Partner{p})
	if added == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "known"})
		return
	}
	h.logger.Info("partner added via api", zap.String("partner", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPartner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.deps.Roster.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "partner not found"})
		return
	}
	state, ok := h.deps.Conversations.State(id)
	if !ok {
		state = conversation.NewPartnerState(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"partner": p,
		"stage":   state.Position().String(),
		"state":   state,
	})
}

func (h *Handler) previewNext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Roster.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "partner not found"})
		return
	}
	msg, pos := h.deps.Conversations.Preview(id)
	writeJSON(w, http.StatusOK, map[string]string{"stage": pos.String(), "message": msg})
}

func (h *Handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	if h.deps.Transcripts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "transcripts disabled"})
		return
	}
	text, err := h.deps.Transcripts.Read(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

// match is a ranked partner for /api/matches.
type match struct {
	Partner  string  `json:"partner"`
	Score    float64 `json:"score"`
	Turns    int64   `json:"turns,omitempty"`
	Source   string  `json:"source"` // graph|interests
	Interest int     `json:"interest_hits"`
}

// listMatches ranks partners by graph affinity when available, then by
// shared interests found in their descriptions.
func (h *Handler) listMatches(w http.ResponseWriter, r *http.Request) {
	byPartner := make(map[string]*match)
	for _, p := range h.deps.Roster.Partners() {
		card := &a2a.AgentCard{Description: p.Description}
		hits := a2a.MatchScore(card, h.deps.Profile.Interests)
		byPartner[p.ID] = &match{Partner: p.ID, Source: "interests", Interest: hits}
		if n := len(h.deps.Profile.Interests); n > 0 {
			byPartner[p.ID].Score = float64(hits) / float64(n)
		}
	}

	if h.deps.Affinities != nil {
		affs, err := h.deps.Affinities.Affinities(r.Context(), h.deps.Profile.Name)
		if err != nil {
			h.logger.Warn("affinity lookup failed", zap.Error(err))
		}
		for _, a := range affs {
			m, ok := byPartner[a.Partner]
			if !ok {
				m = &match{Partner: a.Partner}
				byPartner[a.Partner] = m
			}
			m.Score = a.Strength
			m.Turns = a.Turns
			m.Source = "graph"
		}
	}

	out := make([]*match, 0, len(byPartner))
	for _, m := range byPartner {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Partner < out[j].Partner
	})
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listTurns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Turns == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "turn stream disabled"})
		return
	}
	limit := int64(20)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	evs, err := h.deps.Turns.Recent(r.Context(), h.deps.Profile.Name, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

// streamTurns relays the turn stream as server-sent events until the client
// goes away. Last-Event-ID or ?since= resumes after a stream id.
func (h *Handler) streamTurns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Turns == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "turn stream disabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	since := r.Header.Get("Last-Event-ID")
	if since == "" {
		since = r.URL.Query().Get("since")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.deps.Turns.Subscribe(r.Context(), h.deps.Profile.Name, since) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("encode turn event", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "id: %s\nevent: turn\ndata: %s\n\n", ev.ID, data)
		flusher.Flush()
	}
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence disabled"})
		return
	}
	out, err := h.deps.History.ListConversations(r.Context(), h.deps.Profile.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if out == nil {
		out = []store.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
