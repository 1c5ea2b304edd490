package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/xoxo/internal/persona"
	"go.uber.org/zap"
)

// Reply is what a transport returns for one delivered message.
type Reply struct {
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
	Text     string `json:"text"`
}

// Transport delivers messages to partners. SendNew opens a thread, SendReply
// continues the thread identified by threadID.
type Transport interface {
	SendNew(ctx context.Context, partner Partner, text string) (*Reply, error)
	SendReply(ctx context.Context, partner Partner, threadID, text string) (*Reply, error)
}

// Turn is a completed exchange handed to observers.
type Turn struct {
	Self         string    `json:"self"`
	Partner      Partner   `json:"partner"`
	Position     Position  `json:"position"`
	ThreadID     string    `json:"thread_id"`
	Outgoing     string    `json:"outgoing"`
	Reply        string    `json:"reply,omitempty"`
	MessageCount int       `json:"message_count"`
	At           time.Time `json:"at"`
}

// TurnObserver is notified of every completed turn. Errors are logged only.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, turn *Turn) error
}

// Stats receives loop measurements.
type Stats interface {
	ObserveSend(partner, status string, elapsed time.Duration)
	SetRosterSize(n int)
}

// DriverConfig holds the loop pacing.
type DriverConfig struct {
	InitialDelay time.Duration
	PartnerDelay time.Duration
	RoundDelay   time.Duration
	IdleDelay    time.Duration
}

// Driver runs the periodic conversation loop for one persona.
type Driver struct {
	profile   *persona.Profile
	gen       *Generator
	transport Transport
	roster    *Roster
	cfg       DriverConfig
	observers []TurnObserver
	stats     Stats
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	states    map[string]*PartnerState
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewDriver creates a conversation driver.
func NewDriver(profile *persona.Profile, gen *Generator, transport Transport, roster *Roster, cfg DriverConfig, logger *zap.Logger) *Driver {
	return &Driver{
		profile:   profile,
		gen:       gen,
		transport: transport,
		roster:    roster,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
		states:    make(map[string]*PartnerState),
		logger:    logger,
	}
}

// AddObserver registers a turn observer. Must be called before Run.
func (d *Driver) AddObserver(o TurnObserver) {
	d.observers = append(d.observers, o)
}

// SetStats attaches a stats sink. Must be called before Run.
func (d *Driver) SetStats(s Stats) {
	d.stats = s
}

// SetClock overrides the timestamp source.
func (d *Driver) SetClock(now func() time.Time) {
	d.now = now
}

// Restore seeds partner states, e.g. from persistent storage. Existing
// states are left alone.
func (d *Driver) Restore(states []*PartnerState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range states {
		if _, ok := d.states[s.PartnerID]; ok {
			continue
		}
		d.states[s.PartnerID] = s.Clone()
	}
}

// State returns a copy of a partner's state.
func (d *Driver) State(partnerID string) (*PartnerState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.states[partnerID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Snapshot returns copies of all partner states ordered by partner id.
func (d *Driver) Snapshot() []*PartnerState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*PartnerState, 0, len(d.states))
	for _, s := range d.states {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartnerID < out[j].PartnerID })
	return out
}

// stateFor returns the live state for a partner, creating it on first contact.
func (d *Driver) stateFor(partnerID string) *PartnerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[partnerID]
	if !ok {
		s = NewPartnerState(partnerID)
		d.states[partnerID] = s
	}
	return s
}

// NextMessage builds the message that would be sent to partnerID now.
func (d *Driver) NextMessage(partnerID string) (string, Position) {
	s := d.stateFor(partnerID)
	d.mu.RLock()
	pos := s.Position()
	history := s.History
	d.mu.RUnlock()
	return d.gen.Generate(partnerID, history, pos), pos
}

// Preview shows the next message for partnerID without creating state or
// consuming randomness, so it is safe to call from outside the loop.
func (d *Driver) Preview(partnerID string) (string, Position) {
	d.mu.RLock()
	s, ok := d.states[partnerID]
	if !ok {
		s = NewPartnerState(partnerID)
	}
	pos := s.Position()
	history := s.History[:len(s.History):len(s.History)]
	d.mu.RUnlock()
	return d.gen.Preview(partnerID, history, pos), pos
}

// AdvanceTurn records a completed exchange with partnerID. An empty reply
// records the outgoing message only. Not idempotent.
func (d *Driver) AdvanceTurn(partnerID, outgoing, reply string) *PartnerState {
	s := d.stateFor(partnerID)
	d.mu.Lock()
	defer d.mu.Unlock()
	s.Advance(d.profile.Name, outgoing, reply, d.now())
	return s.Clone()
}

// Converse performs one turn with a partner. On a transport error the
// partner's state is left untouched so the next round retries cleanly.
func (d *Driver) Converse(ctx context.Context, partner Partner) (*Turn, error) {
	s := d.stateFor(partner.ID)

	d.mu.RLock()
	count := s.MessageCount
	threadID := s.ThreadID
	d.mu.RUnlock()

	message, pos := d.NextMessage(partner.ID)
	d.logger.Info("sending message",
		zap.String("partner", partner.ID),
		zap.String("stage", pos.String()),
		zap.String("message", message))

	start := time.Now()
	var (
		reply *Reply
		err   error
	)
	if count == 0 || threadID == "" {
		reply, err = d.transport.SendNew(ctx, partner, message)
	} else {
		reply, err = d.transport.SendReply(ctx, partner, threadID, message)
	}
	if err != nil {
		d.observeSend(partner.ID, "error", time.Since(start))
		return nil, fmt.Errorf("send to %s: %w", partner.ID, err)
	}
	if reply == nil {
		reply = &Reply{}
	}
	d.observeSend(partner.ID, reply.Status, time.Since(start))

	d.mu.Lock()
	if reply.ThreadID != "" {
		s.ThreadID = reply.ThreadID
	}
	at := d.now()
	s.Advance(d.profile.Name, message, reply.Text, at)
	turn := &Turn{
		Self:         d.profile.Name,
		Partner:      partner,
		Position:     pos,
		ThreadID:     s.ThreadID,
		Outgoing:     message,
		Reply:        reply.Text,
		MessageCount: s.MessageCount,
		At:           at,
	}
	d.mu.Unlock()

	d.notify(ctx, turn)
	return turn, nil
}

func (d *Driver) notify(ctx context.Context, turn *Turn) {
	for _, o := range d.observers {
		if err := o.ObserveTurn(ctx, turn); err != nil {
			d.logger.Warn("turn observer failed",
				zap.String("partner", turn.Partner.ID),
				zap.String("observer", fmt.Sprintf("%T", o)),
				zap.Error(err))
		}
	}
}

func (d *Driver) observeSend(partner, status string, elapsed time.Duration) {
	if d.stats != nil {
		d.stats.ObserveSend(partner, status, elapsed)
	}
}

// RunRound talks to every partner on the roster once, sequentially, and
// returns the number of completed turns. A failing partner never stops the round.
func (d *Driver) RunRound(ctx context.Context) int {
	partners := d.roster.Partners()
	if d.stats != nil {
		d.stats.SetRosterSize(len(partners))
	}

	done := 0
	for _, p := range partners {
		if ctx.Err() != nil {
			return done
		}
		if err := d.safeConverse(ctx, p); err != nil {
			d.logger.Error("conversation turn failed",
				zap.String("partner", p.ID), zap.Error(err))
		} else {
			done++
		}
		if err := d.sleep(ctx, d.cfg.PartnerDelay); err != nil {
			return done
		}
	}
	return done
}

func (d *Driver) safeConverse(ctx context.Context, p Partner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in conversation with %s: %v", p.ID, r)
		}
	}()
	_, err = d.Converse(ctx, p)
	return err
}

// Run drives conversation rounds until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("conversation loop started",
		zap.String("persona", d.profile.Name),
		zap.Duration("initial_delay", d.cfg.InitialDelay),
		zap.Duration("round_delay", d.cfg.RoundDelay))

	if err := d.sleep(ctx, d.cfg.InitialDelay); err != nil {
		return err
	}
	for {
		delay := d.cfg.RoundDelay
		if d.roster.Len() == 0 {
			d.logger.Info("no remote agents available for conversation, waiting")
			delay = d.cfg.IdleDelay
		} else {
			n := d.RunRound(ctx)
			d.logger.Debug("conversation round finished", zap.Int("turns", n))
		}
		if err := d.sleep(ctx, delay); err != nil {
			d.logger.Info("conversation loop stopped")
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
