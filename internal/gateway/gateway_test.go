package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	platform   string
	connectErr error
	sendErr    error
	mu         sync.Mutex
	sent       []OutboundMessage
	next       int
}

func (f *fakeAdapter) Platform() string              { return f.platform }
func (f *fakeAdapter) Connect(context.Context) error { return f.connectErr }
func (f *fakeAdapter) Close() error                  { return nil }
func (f *fakeAdapter) Send(_ context.Context, m *OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, *m)
	f.next++
	return fmt.Sprintf("ts-%d", f.next), nil
}

func turn(partner, out, reply string) *conversation.Turn {
	return &conversation.Turn{Self: "Ana", Partner: conversation.Partner{ID: partner}, Outgoing: out, Reply: reply}
}

func TestObserveTurnThreadsPerPartner(t *testing.T) {
	g := NewGateway(zap.NewNop())
	a := &fakeAdapter{platform: "slack"}
	g.Register(a, "C1")
	ctx := context.Background()

	if err := g.ObserveTurn(ctx, turn("Irvin", "hi", "hello")); err != nil {
		t.Fatal(err)
	}
	if err := g.ObserveTurn(ctx, turn("Irvin", "again", "")); err != nil {
		t.Fatal(err)
	}
	if err := g.ObserveTurn(ctx, turn("Robert", "hey", "")); err != nil {
		t.Fatal(err)
	}

	if len(a.sent) != 4 {
		t.Fatalf("sent %d messages, want 4", len(a.sent))
	}
	if a.sent[0].ThreadID != "" || a.sent[0].Speaker != "Ana" || a.sent[0].ChannelID != "C1" {
		t.Errorf("first message %+v", a.sent[0])
	}
	if a.sent[1].ThreadID != "ts-1" || a.sent[1].Speaker != "Irvin" {
		t.Errorf("reply should be threaded under the opener: %+v", a.sent[1])
	}
	if a.sent[2].ThreadID != "ts-1" {
		t.Errorf("later turn should reuse thread: %+v", a.sent[2])
	}
	if a.sent[3].ThreadID != "" {
		t.Errorf("new partner should open a new thread: %+v", a.sent[3])
	}
}

func TestConnectAllDropsFailingAdapters(t *testing.T) {
	g := NewGateway(zap.NewNop())
	g.Register(&fakeAdapter{platform: "slack"}, "C1")
	g.Register(&fakeAdapter{platform: "discord", connectErr: errors.New("bad token")}, "D1")

	if err := g.ConnectAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	got := g.Adapters()
	if len(got) != 1 || got[0] != "slack" {
		t.Errorf("adapters = %v", got)
	}
}

func TestObserveTurnReportsSendErrors(t *testing.T) {
	g := NewGateway(zap.NewNop())
	g.Register(&fakeAdapter{platform: "slack", sendErr: errors.New("rate limited")}, "C1")
	if err := g.ObserveTurn(context.Background(), turn("Irvin", "hi", "")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSlackAdapterSend(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "chat.postMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	a := NewSlackAdapter("xoxb-test", zap.NewNop(), slack.OptionAPIURL(srv.URL+"/"))
	a.SetPersona("Ana", &Persona{Name: "Ana", Emoji: ":scales:"})

	ts, err := a.Send(context.Background(), &OutboundMessage{ChannelID: "C1", Speaker: "Ana", Content: "hi", ThreadID: "1.0"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ts != "1700000000.000100" {
		t.Errorf("ts = %q", ts)
	}
	if form["text"][0] != "hi" || form["thread_ts"][0] != "1.0" || form["username"][0] != "Ana" || form["icon_emoji"][0] != ":scales:" {
		t.Errorf("unexpected form %v", form)
	}
}

func TestParseWebhookURL(t *testing.T) {
	id, token, ok := ParseWebhookURL("https://discord.com/api/webhooks/123/abc")
	if !ok || id != "123" || token != "abc" {
		t.Errorf("got (%q, %q, %v)", id, token, ok)
	}
	for _, bad := range []string{"", "https://discord.com/api/webhooks/123", "https://example.com/x/y"} {
		if _, _, ok := ParseWebhookURL(bad); ok {
			t.Errorf("ParseWebhookURL(%q) should fail", bad)
		}
	}
}

func TestFormatDiscord(t *testing.T) {
	if got := FormatDiscord("Irvin", "merhaba"); got != "**[Irvin]** merhaba" {
		t.Errorf("got %q", got)
	}
	if got := FormatDiscord("", "x"); got != "x" {
		t.Errorf("got %q", got)
	}
}

func TestAnnounceReachesEveryChannel(t *testing.T) {
	g := NewGateway(zap.NewNop())
	slackFake := &fakeAdapter{platform: "slack"}
	discordFake := &fakeAdapter{platform: "discord", sendErr: errors.New("rate limited")}
	g.Register(slackFake, "C1")
	g.Register(discordFake, "D1")
	ctx := context.Background()

	err := g.Announce(ctx, "Ana", "Ana is online")
	if err == nil || !strings.Contains(err.Error(), "announce to discord") {
		t.Errorf("expected discord error, got %v", err)
	}
	if len(slackFake.sent) != 1 {
		t.Fatalf("slack got %d messages, want 1", len(slackFake.sent))
	}
	if m := slackFake.sent[0]; m.ChannelID != "C1" || m.ThreadID != "" || m.Speaker != "Ana" {
		t.Errorf("unexpected announcement %+v", m)
	}

	// An announcement is not a partner thread opener.
	if err := g.ObserveTurn(ctx, turn("Irvin", "hi", "")); err == nil {
		t.Fatal("expected discord error from ObserveTurn")
	}
	if slackFake.sent[1].ThreadID != "" {
		t.Errorf("first turn after announce should open its own thread: %+v", slackFake.sent[1])
	}
}
