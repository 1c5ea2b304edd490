package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/nidhogg/xoxo/internal/persona"
	"go.uber.org/zap"
)

// fixedRand always returns the same index, clamped to n.
type fixedRand struct{ idx int }

func (r fixedRand) IntN(n int) int {
	if r.idx >= n {
		return n - 1
	}
	return r.idx
}

// badRand returns an index outside the valid range.
type badRand struct{}

func (badRand) IntN(n int) int { return n + 5 }

func mustPersona(t *testing.T, id string) *persona.Profile {
	t.Helper()
	p, ok := persona.Builtin(id)
	if !ok {
		t.Fatalf("builtin persona %q not found", id)
	}
	return p
}

func entries(pairs ...string) []Entry {
	var out []Entry
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Entry{Speaker: pairs[i], Text: pairs[i+1], Timestamp: ts})
	}
	return out
}

func TestGenerateGreetingContainsPartner(t *testing.T) {
	gen := NewGenerator(mustPersona(t, "ana"), fixedRand{}, zap.NewNop())
	msg := gen.Generate("p1", nil, SelectStage(0))
	if !strings.Contains(msg, "p1") {
		t.Errorf("greeting %q does not mention partner", msg)
	}
	if !strings.HasPrefix(msg, "Hello p1, I'm Ana!") {
		t.Errorf("unexpected greeting %q", msg)
	}
}

func TestGenerateFollowup1ChefSelectsCooking(t *testing.T) {
	irvin := mustPersona(t, "irvin")
	gen := NewGenerator(irvin, fixedRand{}, zap.NewNop())

	history := entries(
		"Irvin", "Hello Ana, I'm Irvin!",
		"Ana", "I work as a chef on weekends to relax.",
	)
	msg := gen.Generate("Ana", history, SelectStage(1))
	if msg != irvin.Followups[0].Rules[0].Text {
		t.Errorf("got %q, want cooking branch", msg)
	}

	// Same history attributed to someone else must not count.
	msg = gen.Generate("Jake", history, SelectStage(1))
	if msg != irvin.Followups[0].Default {
		t.Errorf("got %q, want default", msg)
	}
}

func TestGenerateFollowup1AnaCookingBranch(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())
	history := entries("Irvin - Turkish Chef", "I'm the head chef at my restaurant.")

	got := gen.Generate("Irvin", history, SelectStage(1))
	if !strings.Contains(got, "As a chef, do you consider ethical sourcing") {
		t.Errorf("got %q, want cooking branch", got)
	}
}

func TestGenerateAnimalWelfareQuirkPreserved(t *testing.T) {
	// Ana files "animal welfare" under topics, so her interest-based
	// follow-up branch for it can never fire.
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())
	history := entries("Irvin", "I care about animal welfare a lot.")

	got := gen.Generate("Irvin", history, SelectStage(1))
	if got != ana.Followups[0].Default {
		t.Errorf("got %q, want default", got)
	}
}

func TestGenerateFollowup2NegatedConditions(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())

	tests := []struct {
		name    string
		history []Entry
		want    string
	}{
		{"no hobbies yet", nil, ana.Followups[1].Rules[0].Text},
		{"hobbies discussed", entries("Irvin", "My hobbies are guitar."), ana.Followups[1].Rules[1].Text},
		{"hobbies and animals", entries("Irvin", "My hobby is helping animal shelters."), ana.Followups[1].Default},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gen.Generate("Irvin", tt.history, SelectStage(2)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateFollowup3(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())

	got := gen.Generate("Irvin", entries("Irvin", "Riding along the coast is great."), SelectStage(3))
	if got != ana.Followups[2].Rules[0].Text {
		t.Errorf("got %q, want motorcycle branch", got)
	}
	got = gen.Generate("Irvin", entries("Irvin", "Turkish food is the best."), SelectStage(3))
	if got != ana.Followups[2].Rules[1].Text {
		t.Errorf("got %q, want turkish branch", got)
	}
}

func TestGenerateOngoingInjectsTopic(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{idx: 0}, zap.NewNop())

	// len(history) == 6 -> topic injection turn
	history := entries(
		"Ana", "hello",
		"Irvin", "hi",
		"Ana", "how are you",
		"Irvin", "fine",
		"Ana", "great",
		"Irvin", "yes",
	)
	got := gen.Generate("Irvin", history, SelectStage(4))
	if got != ana.Topics[0] {
		t.Errorf("got %q, want first topic", got)
	}
}

func TestGenerateOngoingSkipsRecentTopics(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{idx: 0}, zap.NewNop())

	history := entries(
		"Ana", ana.Topics[0],
		"Irvin", "sure",
		"Ana", ana.Topics[1],
	)
	got := gen.Generate("Irvin", history, SelectStage(5))
	if got != ana.Topics[2] {
		t.Errorf("got %q, want third topic", got)
	}
}

func TestGenerateOngoingNeverRepeatsRecentTopic(t *testing.T) {
	ana := mustPersona(t, "ana")
	for idx := 0; idx < len(ana.Topics); idx++ {
		gen := NewGenerator(ana, fixedRand{idx: idx}, zap.NewNop())
		for used := 0; used <= len(ana.Topics); used++ {
			var history []Entry
			for i := 0; i < used; i++ {
				history = append(history, Entry{Speaker: "Ana", Text: ana.Topics[i]})
			}
			for len(history)%3 != 0 {
				history = append(history, Entry{Speaker: "Irvin", Text: "ok"})
			}
			recent := gen.recentSelfMessages(history)
			got := gen.Generate("Irvin", history, SelectStage(6))
			for _, r := range recent {
				if strings.Contains(r, strings.ToLower(got)) {
					t.Fatalf("idx=%d used=%d: picked recent topic %q", idx, used, got)
				}
			}
		}
	}
}

func TestGenerateOngoingInterestReply(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())

	// len(history) == 4 -> no topic injection
	history := entries(
		"Ana", "hello",
		"Irvin", "I love Turkish food and my business.",
		"Ana", "nice",
		"Irvin", "thanks",
	)
	got := gen.Generate("Irvin", history, SelectStage(4))
	if got != ana.Ongoing[0].Text {
		t.Errorf("got %q, want turkish reply", got)
	}

	// Once we mentioned "turkish" ourselves, the next rule wins.
	history = append(history, Entry{Speaker: "Ana", Text: ana.Ongoing[0].Text}, Entry{Speaker: "Irvin", Text: "hmm"})
	history = append(history, Entry{Speaker: "Ana", Text: "ok"})
	got = gen.Generate("Irvin", history, SelectStage(5))
	if got != ana.Ongoing[1].Text {
		t.Errorf("got %q, want business reply", got)
	}
}

func TestGenerateOngoingContinuation(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, fixedRand{}, zap.NewNop())
	history := entries("Ana", "hello", "Irvin", "hi")

	got := gen.Generate("Irvin", history, SelectStage(4))
	want := strings.ReplaceAll(ana.Continuation, "{partner}", "Irvin")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGenerateFallbackOnFault(t *testing.T) {
	ana := mustPersona(t, "ana")
	gen := NewGenerator(ana, badRand{}, zap.NewNop())
	fallbacks := 0
	gen.OnFallback(func(string) { fallbacks++ })

	got := gen.Generate("Irvin", nil, SelectStage(4))
	if got != gen.Fallback("Irvin") {
		t.Errorf("got %q, want fallback", got)
	}

	got = gen.Generate("Irvin", nil, Position{Stage: Stage(42)})
	if got != gen.Fallback("Irvin") {
		t.Errorf("unknown stage: got %q, want fallback", got)
	}
	if fallbacks != 2 {
		t.Errorf("fallback hook called %d times, want 2", fallbacks)
	}
}
