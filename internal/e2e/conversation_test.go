package e2e

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/api"
	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/nidhogg/xoxo/internal/registry"
	"github.com/nidhogg/xoxo/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// node is one agent process: API plus A2A endpoint on an httptest server.
type node struct {
	profile *persona.Profile
	driver  *conversation.Driver
	roster  *conversation.Roster
	log     *transcript.Log
	poller  *registry.Poller
	ts      *httptest.Server
}

// startNode boots a persona against the shared directory. Both agents write
// transcripts into dir, as when they run side by side.
func startNode(t *testing.T, id, dir string, reg registry.Registry) *node {
	t.Helper()
	logger := zap.NewNop()

	profile, err := persona.Resolve(id)
	require.NoError(t, err)

	n := &node{profile: profile, roster: conversation.NewRoster(profile.Name)}

	// The card URL is only known once the server listens.
	var handler http.Handler
	n.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(n.ts.Close)

	card := a2a.CardFromProfile(profile, n.ts.URL+"/")
	gen := conversation.NewGenerator(profile, rand.New(rand.NewPCG(7, 11)), logger)
	n.driver = conversation.NewDriver(profile, gen, a2a.NewClient(0, logger), n.roster, conversation.DriverConfig{}, logger)

	n.log, err = transcript.New(dir, profile, logger)
	require.NoError(t, err)
	n.driver.AddObserver(n.log)

	n.poller = registry.NewPoller(reg, n.roster, card, registry.PollConfig{}, logger)

	handler = api.NewHandler(api.Deps{
		Profile:       profile,
		Card:          card,
		Roster:        n.roster,
		Conversations: n.driver,
		A2A:           a2a.NewServer(card, a2a.NewCannedResponder(profile), logger),
		Transcripts:   n.log,
	}, logger).Router()
	return n
}

func TestTwoAgentsConverse(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := registry.NewStaticRegistry()

	ana := startNode(t, "ana", dir, reg)
	irvin := startNode(t, "irvin", dir, reg)

	// Ana registers first and sees nobody; Irvin then sees Ana, and Ana
	// picks Irvin up on her next poll.
	added, err := ana.poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	added, err = irvin.poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	added, err = ana.poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	for round := 0; round < 5; round++ {
		assert.Equal(t, 1, ana.driver.RunRound(ctx), "ana round %d", round)
		assert.Equal(t, 1, irvin.driver.RunRound(ctx), "irvin round %d", round)
	}

	irvinID := irvin.profile.DisplayName()
	state, ok := ana.driver.State(irvinID)
	require.True(t, ok)
	assert.Equal(t, 5, state.MessageCount)
	assert.Equal(t, conversation.StageOngoing, state.Position().Stage)
	require.NotEmpty(t, state.History)
	assert.Contains(t, state.History[0].Text, irvinID, "greeting names the partner")
	assert.Equal(t, irvinID, state.History[1].Speaker)
	assert.NotEmpty(t, state.ThreadID)

	// Both sides append to the same transcript file.
	assert.Equal(t, ana.log.PathFor(irvinID), irvin.log.PathFor(ana.profile.DisplayName()))
	text, err := ana.log.Read(irvinID)
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(text, "\n\n"), "5 rounds x 2 agents x (message + reply)")

	resp, err := http.Get(ana.ts.URL + "/api/partners")
	require.NoError(t, err)
	defer resp.Body.Close()
	var partners []struct {
		ID           string `json:"id"`
		MessageCount int    `json:"message_count"`
		Stage        string `json:"stage"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&partners))
	require.Len(t, partners, 1)
	assert.Equal(t, irvinID, partners[0].ID)
	assert.Equal(t, 5, partners[0].MessageCount)
	assert.Equal(t, "ongoing/1", partners[0].Stage)
}

func TestConversationSurvivesUnreachablePartner(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewStaticRegistry(conversation.Partner{ID: "Ghost", URL: "http://127.0.0.1:1/"})

	ana := startNode(t, "ana", t.TempDir(), reg)
	irvin := startNode(t, "irvin", t.TempDir(), reg)
	_, err := irvin.poller.Poll(ctx)
	require.NoError(t, err)
	_, err = ana.poller.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, ana.roster.Len())

	assert.Equal(t, 1, ana.driver.RunRound(ctx))
	ghost, ok := ana.driver.State("Ghost")
	require.True(t, ok)
	assert.Equal(t, 0, ghost.MessageCount, "failed sends leave the count untouched")
	s, ok := ana.driver.State(irvin.profile.DisplayName())
	require.True(t, ok)
	assert.Equal(t, 1, s.MessageCount)
}
