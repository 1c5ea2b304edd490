package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig locates the agent directory collection.
type MongoConfig struct {
	URI          string        `json:"uri"`
	Database     string        `json:"database"`
	Collection   string        `json:"collection"`
	ActiveWindow time.Duration `json:"-"`
}

// agentRecord is the stored shape of a registered card.
type agentRecord struct {
	Name         string           `bson:"name"`
	Description  string           `bson:"description"`
	URL          string           `bson:"url"`
	Version      string           `bson:"version"`
	Capabilities a2a.Capabilities `bson:"capabilities"`
	Skills       []a2a.Skill      `bson:"skills"`
	LastSeen     time.Time        `bson:"last_seen"`
	Active       bool             `bson:"active"`
}

// MongoRegistry stores agent cards in a MongoDB collection keyed by name and url.
type MongoRegistry struct {
	client *mongo.Client
	coll   *mongo.Collection
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewMongoRegistry connects to MongoDB and verifies the connection.
func NewMongoRegistry(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoRegistry, error) {
	if cfg.Database == "" {
		cfg.Database = "xoxo"
	}
	if cfg.Collection == "" {
		cfg.Collection = "agents"
	}
	if cfg.ActiveWindow == 0 {
		cfg.ActiveWindow = DefaultActiveWindow
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to agent registry",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return &MongoRegistry{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		window: cfg.ActiveWindow,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Register upserts the card and refreshes its last_seen time.
func (r *MongoRegistry) Register(ctx context.Context, card *a2a.AgentCard) error {
	filter, update := registerOps(card, r.now())
	res, err := r.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("register agent %s: %w", card.Name, err)
	}
	if res.UpsertedCount > 0 {
		r.logger.Info("registered new agent", zap.String("name", card.Name), zap.String("url", card.URL))
	} else {
		r.logger.Debug("updated agent", zap.String("name", card.Name), zap.String("url", card.URL))
	}
	return nil
}

// ListPartners returns agents seen within the active window.
func (r *MongoRegistry) ListPartners(ctx context.Context) ([]conversation.Partner, error) {
	cur, err := r.coll.Find(ctx, activeFilter(r.now(), r.window))
	if err != nil {
		return nil, fmt.Errorf("find agents: %w", err)
	}
	var records []agentRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}

	out := make([]conversation.Partner, 0, len(records))
	for _, rec := range records {
		out = append(out, PartnerFromCard(rec.card()))
	}
	r.logger.Debug("active agents listed", zap.Int("count", len(out)))
	return out, nil
}

// Close disconnects from MongoDB.
func (r *MongoRegistry) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func registerOps(card *a2a.AgentCard, at time.Time) (bson.M, bson.M) {
	rec := agentRecord{
		Name:         card.Name,
		Description:  card.Description,
		URL:          card.URL,
		Version:      card.Version,
		Capabilities: card.Capabilities,
		Skills:       card.Skills,
		LastSeen:     at.UTC(),
		Active:       true,
	}
	return bson.M{"name": card.Name, "url": card.URL}, bson.M{"$set": rec}
}

func activeFilter(now time.Time, window time.Duration) bson.M {
	return bson.M{"last_seen": bson.M{"$gt": now.Add(-window).UTC()}}
}

func (rec *agentRecord) card() *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:         rec.Name,
		Description:  rec.Description,
		URL:          rec.URL,
		Version:      rec.Version,
		Capabilities: rec.Capabilities,
		Skills:       rec.Skills,
	}
}
