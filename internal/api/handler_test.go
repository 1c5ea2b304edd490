package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/events"
	"github.com/nidhogg/xoxo/internal/metrics"
	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/nidhogg/xoxo/internal/relation"
	"github.com/nidhogg/xoxo/internal/store"
	"go.uber.org/zap"
)

// echoTransport answers every message with a fixed reply.
type echoTransport struct{}

func (echoTransport) SendNew(_ context.Context, p conversation.Partner, _ string) (*conversation.Reply, error) {
	return &conversation.Reply{ThreadID: "t:" + p.ID, Status: "completed", Text: "I love cooking"}, nil
}

func (echoTransport) SendReply(_ context.Context, _ conversation.Partner, threadID, _ string) (*conversation.Reply, error) {
	return &conversation.Reply{ThreadID: threadID, Status: "completed", Text: "tell me more"}, nil
}

type stubAffinities []relation.Affinity

func (s stubAffinities) Affinities(context.Context, string) ([]relation.Affinity, error) {
	return s, nil
}

type stubFeed []*events.TurnEvent

func (s stubFeed) Recent(_ context.Context, _ string, n int64) ([]*events.TurnEvent, error) {
	if int64(len(s)) > n {
		return s[:n], nil
	}
	return s, nil
}

func (s stubFeed) Subscribe(_ context.Context, _ string, lastID string) <-chan *events.TurnEvent {
	ch := make(chan *events.TurnEvent, len(s))
	for _, ev := range s {
		if ev.ID > lastID {
			ch <- ev
		}
	}
	close(ch)
	return ch
}

type stubHistory []store.ConversationSummary

func (s stubHistory) ListConversations(context.Context, string) ([]store.ConversationSummary, error) {
	return s, nil
}

type stubTranscripts map[string]string

func (s stubTranscripts) Read(id string) (string, error) { return s[id], nil }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

const irvin = "Irvin - Turkish Chef and Businessman"

type testEnv struct {
	handler *Handler
	driver  *conversation.Driver
	roster  *conversation.Roster
	ts      *httptest.Server
}

// newTestHandler wires a handler around an in-memory driver (no Neo4j/Redis).
func newTestHandler(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	profile, err := persona.Resolve("ana")
	if err != nil {
		t.Fatalf("resolve persona: %v", err)
	}
	roster := conversation.NewRoster(profile.Name)
	roster.Merge([]conversation.Partner{{ID: irvin, DisplayName: "Irvin", URL: "http://irvin.test/", Description: "Chef who loves hiking and animal rights"}})

	gen := conversation.NewGenerator(profile, rand.New(rand.NewPCG(1, 2)), logger)
	driver := conversation.NewDriver(profile, gen, echoTransport{}, roster, conversation.DriverConfig{}, logger)

	card := a2a.CardFromProfile(profile, "http://ana.test/")
	deps := Deps{
		Profile:       profile,
		Card:          card,
		Roster:        roster,
		Conversations: driver,
		A2A:           a2a.NewServer(card, a2a.NewCannedResponder(profile), logger),
		Metrics:       metrics.NewCollector("xoxo_test", logger),
	}
	if mutate != nil {
		mutate(&deps)
	}

	h := NewHandler(deps, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return &testEnv{handler: h, driver: driver, roster: roster, ts: ts}
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	env := newTestHandler(t, func(d *Deps) {
		d.Checks = map[string]Pinger{"postgres": pingFunc(func(context.Context) error { return nil })}
	})

	resp := getJSON(t, env.ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["roster"].(float64) != 1 {
		t.Errorf("expected roster 1, got %v", body["roster"])
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	env := newTestHandler(t, func(d *Deps) {
		d.Checks = map[string]Pinger{"redis": pingFunc(func(context.Context) error { return errors.New("down") })}
	})

	resp := getJSON(t, env.ts, "/api/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Status string            `json:"status"`
		Deps   map[string]string `json:"deps"`
	}
	decodeJSON(t, resp, &body)
	if body.Status != "degraded" || body.Deps["redis"] != "down" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestPersonaAndCard(t *testing.T) {
	env := newTestHandler(t, nil)

	for _, path := range []string{"/api/persona", a2a.WellKnownCardPath} {
		var card a2a.AgentCard
		decodeJSON(t, getJSON(t, env.ts, path), &card)
		if card.URL != "http://ana.test/" {
			t.Errorf("%s: expected card url, got %q", path, card.URL)
		}
		if len(card.Skills) != 1 {
			t.Errorf("%s: expected 1 skill, got %d", path, len(card.Skills))
		}
	}
}

func TestPartnersReflectConversation(t *testing.T) {
	env := newTestHandler(t, nil)

	var before []partnerSummary
	decodeJSON(t, getJSON(t, env.ts, "/api/partners"), &before)
	if len(before) != 1 || before[0].Stage != "greeting" || before[0].MessageCount != 0 {
		t.Fatalf("unexpected partners before: %+v", before)
	}

	p, _ := env.roster.Get(irvin)
	for i := 0; i < 2; i++ {
		if _, err := env.driver.Converse(context.Background(), p); err != nil {
			t.Fatalf("converse: %v", err)
		}
	}

	var after []partnerSummary
	decodeJSON(t, getJSON(t, env.ts, "/api/partners"), &after)
	if after[0].MessageCount != 2 || after[0].Stage != "followup_2" {
		t.Errorf("unexpected partners after: %+v", after[0])
	}

	var detail struct {
		Stage string                    `json:"stage"`
		State conversation.PartnerState `json:"state"`
	}
	decodeJSON(t, getJSON(t, env.ts, "/api/partners/"+irvin), &detail)
	if detail.Stage != "followup_2" {
		t.Errorf("expected followup_2, got %s", detail.Stage)
	}
	if len(detail.State.History) != 4 {
		t.Errorf("expected 4 history entries, got %d", len(detail.State.History))
	}
}

func TestPartnerNotFound(t *testing.T) {
	env := newTestHandler(t, nil)

	for _, path := range []string{"/api/partners/nobody", "/api/partners/nobody/next"} {
		resp := getJSON(t, env.ts, path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestPreviewNextIsGreeting(t *testing.T) {
	env := newTestHandler(t, nil)

	var body map[string]string
	decodeJSON(t, getJSON(t, env.ts, "/api/partners/"+irvin+"/next"), &body)
	if body["stage"] != "greeting" {
		t.Errorf("expected greeting, got %s", body["stage"])
	}
	if !strings.Contains(body["message"], irvin) {
		t.Errorf("greeting should name the partner: %q", body["message"])
	}
}

func TestAddPartner(t *testing.T) {
	env := newTestHandler(t, nil)

	resp := postJSON(t, env.ts, "/api/partners", map[string]string{"id": "Jake", "url": "http://jake.test/"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if env.roster.Len() != 2 {
		t.Errorf("expected 2 partners, got %d", env.roster.Len())
	}

	resp = postJSON(t, env.ts, "/api/partners", map[string]string{"id": "Jake", "url": "http://jake.test/"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for known partner, got %d", resp.StatusCode)
	}

	resp = postJSON(t, env.ts, "/api/partners", map[string]string{"id": "NoURL"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTranscript(t *testing.T) {
	env := newTestHandler(t, func(d *Deps) {
		d.Transcripts = stubTranscripts{irvin: "[2025-01-01 10:00:00] Ana: hi\n"}
	})

	resp := getJSON(t, env.ts, "/api/partners/"+irvin+"/transcript")
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %s", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "Ana: hi") {
		t.Errorf("unexpected transcript %q", b)
	}
}

func TestMatchesByInterest(t *testing.T) {
	env := newTestHandler(t, nil)
	env.roster.Merge([]conversation.Partner{{ID: "Quiet", URL: "http://quiet.test/", Description: "nothing shared"}})

	var out []match
	decodeJSON(t, getJSON(t, env.ts, "/api/matches"), &out)
	if len(out) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(out))
	}
	if out[0].Partner != irvin || out[0].Source != "interests" {
		t.Errorf("expected irvin first by interests, got %+v", out[0])
	}
	if out[0].Score <= out[1].Score {
		t.Errorf("scores not ranked: %+v", out)
	}
}

func TestMatchesPreferGraph(t *testing.T) {
	env := newTestHandler(t, func(d *Deps) {
		d.Affinities = stubAffinities{{Partner: "Jake", Turns: 20, Strength: 1}}
	})

	var out []match
	decodeJSON(t, getJSON(t, env.ts, "/api/matches"), &out)
	if out[0].Partner != "Jake" || out[0].Source != "graph" || out[0].Turns != 20 {
		t.Errorf("expected graph match first, got %+v", out[0])
	}
}

func TestTurns(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/turns")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a feed, got %d", resp.StatusCode)
	}

	now := time.Now()
	env = newTestHandler(t, func(d *Deps) {
		d.Turns = stubFeed{
			{Partner: irvin, Stage: "followup_1", At: now},
			{Partner: irvin, Stage: "greeting", At: now.Add(-time.Minute)},
		}
	})

	var evs []events.TurnEvent
	decodeJSON(t, getJSON(t, env.ts, "/api/turns?limit=1"), &evs)
	if len(evs) != 1 || evs[0].Stage != "followup_1" {
		t.Errorf("unexpected turns: %+v", evs)
	}

	resp = getJSON(t, env.ts, "/api/turns?limit=abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestA2AEndpoint(t *testing.T) {
	env := newTestHandler(t, nil)
	client := a2a.NewClient(5*time.Second, zap.NewNop())

	reply, err := client.SendNew(context.Background(), conversation.Partner{ID: "Ana", URL: env.ts.URL + "/"}, "Hello Ana")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Status != string(a2a.StateCompleted) || reply.Text == "" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestHandler(t, nil)
	getJSON(t, env.ts, "/api/persona").Body.Close()

	resp := getJSON(t, env.ts, "/metrics")
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "xoxo_test_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}

func TestTurnStream(t *testing.T) {
	now := time.Now()
	env := newTestHandler(t, func(d *Deps) {
		d.Turns = stubFeed{
			{ID: "1-0", Partner: irvin, Stage: "greeting", At: now},
			{ID: "2-0", Partner: irvin, Stage: "followup_1", At: now},
		}
	})

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/turns/stream", nil)
	req.Header.Set("Last-Event-ID", "1-0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	if strings.Count(body, "event: turn") != 1 {
		t.Fatalf("expected one event after 1-0, got %q", body)
	}
	if !strings.Contains(body, "id: 2-0\n") || !strings.Contains(body, `"stage":"followup_1"`) {
		t.Errorf("unexpected stream %q", body)
	}
}

func TestTurnStreamDisabled(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/turns/stream")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestConversations(t *testing.T) {
	env := newTestHandler(t, nil)
	resp := getJSON(t, env.ts, "/api/conversations")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without persistence, got %d", resp.StatusCode)
	}

	env = newTestHandler(t, func(d *Deps) {
		d.History = stubHistory{{PartnerID: irvin, PartnerURL: "http://irvin.test/", MessageCount: 7}}
	})
	var out []store.ConversationSummary
	decodeJSON(t, getJSON(t, env.ts, "/api/conversations"), &out)
	if len(out) != 1 || out[0].MessageCount != 7 || out[0].PartnerID != irvin {
		t.Errorf("unexpected conversations %+v", out)
	}
}
