// Package relation keeps a graph of who talks to whom in Neo4j. Every
// completed turn strengthens the TALKS_TO edge between the two agents.
package relation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

// DefaultBoost is the strength added per turn.
const DefaultBoost = 0.05

// Affinity is the edge from one agent to a partner.
type Affinity struct {
	Partner   string    `json:"partner"`
	URL       string    `json:"url,omitempty"`
	Turns     int64     `json:"turns"`
	Replies   int64     `json:"replies"`
	Strength  float64   `json:"strength"`
	LastStage string    `json:"last_stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Graph records conversations as weighted edges.
type Graph struct {
	driver neo4j.DriverWithContext
	boost  float64
	logger *zap.Logger
}

// Connect opens a Neo4j driver and wraps it in a Graph.
func Connect(ctx context.Context, uri, user, password string, boost float64, logger *zap.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return NewGraph(driver, boost, logger), nil
}

// NewGraph creates a graph on an existing driver.
func NewGraph(driver neo4j.DriverWithContext, boost float64, logger *zap.Logger) *Graph {
	if boost <= 0 {
		boost = DefaultBoost
	}
	return &Graph{driver: driver, boost: boost, logger: logger}
}

// Strength is the edge weight after count turns. The graph stores only turn
// counts; weights are always derived here.
func Strength(count int64, boost float64) float64 {
	return min(1.0, float64(count)*boost)
}

// ObserveTurn strengthens the edge for a turn. It implements
// conversation.TurnObserver.
func (g *Graph) ObserveTurn(ctx context.Context, turn *conversation.Turn) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx, recordTurnQuery, turnParams(turn))
	if err != nil {
		return fmt.Errorf("record turn with %s: %w", turn.Partner.ID, err)
	}
	return nil
}

const recordTurnQuery = `
	MERGE (a:Agent {name: $self})
	MERGE (b:Agent {name: $partner})
	SET b.url = CASE WHEN $url = '' THEN b.url ELSE $url END
	MERGE (a)-[r:TALKS_TO]->(b)
	ON CREATE SET r.turns = 0, r.replies = 0
	SET r.turns = r.turns + 1,
	    r.replies = r.replies + $replied,
	    r.last_stage = $stage,
	    r.updated_at = datetime($at)`

func turnParams(turn *conversation.Turn) map[string]any {
	replied := 0
	if turn.Reply != "" {
		replied = 1
	}
	return map[string]any{
		"self":    turn.Self,
		"partner": turn.Partner.ID,
		"url":     turn.Partner.URL,
		"replied": replied,
		"stage":   turn.Position.String(),
		"at":      turn.At.UTC().Format(time.RFC3339),
	}
}

// Affinities lists self's partners, strongest first.
func (g *Graph) Affinities(ctx context.Context, self string) ([]Affinity, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {name: $self})-[r:TALKS_TO]->(b:Agent)
		 RETURN b.name AS partner, coalesce(b.url, '') AS url,
		        r.turns AS turns, r.replies AS replies,
		        coalesce(r.last_stage, '') AS stage, r.updated_at AS updated_at`,
		map[string]any{"self": self})
	if err != nil {
		return nil, fmt.Errorf("get affinities: %w", err)
	}

	var out []Affinity
	for result.Next(ctx) {
		rec := result.Record()
		a := Affinity{}
		a.Partner, _, _ = neo4j.GetRecordValue[string](rec, "partner")
		a.URL, _, _ = neo4j.GetRecordValue[string](rec, "url")
		a.Turns, _, _ = neo4j.GetRecordValue[int64](rec, "turns")
		a.Replies, _, _ = neo4j.GetRecordValue[int64](rec, "replies")
		a.LastStage, _, _ = neo4j.GetRecordValue[string](rec, "stage")
		a.UpdatedAt, _, _ = neo4j.GetRecordValue[time.Time](rec, "updated_at")
		out = append(out, a)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read affinities: %w", err)
	}
	rank(out, g.boost)
	return out, nil
}

// rank fills in strengths and orders affinities strongest first, then by name.
func rank(affs []Affinity, boost float64) {
	for i := range affs {
		affs[i].Strength = Strength(affs[i].Turns, boost)
	}
	sort.SliceStable(affs, func(i, j int) bool {
		if affs[i].Strength != affs[j].Strength {
			return affs[i].Strength > affs[j].Strength
		}
		return affs[i].Partner < affs[j].Partner
	})
}

// Ping verifies the Neo4j connection.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
