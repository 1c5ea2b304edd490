package conversation

import "testing"

func TestSelectStage(t *testing.T) {
	tests := []struct {
		count int
		want  Position
	}{
		{-1, Position{Stage: StageGreeting}},
		{0, Position{Stage: StageGreeting}},
		{1, Position{Stage: StageFollowup1}},
		{2, Position{Stage: StageFollowup2}},
		{3, Position{Stage: StageFollowup3}},
		{4, Position{Stage: StageOngoing, Sub: 0}},
		{5, Position{Stage: StageOngoing, Sub: 1}},
		{6, Position{Stage: StageOngoing, Sub: 2}},
		{7, Position{Stage: StageOngoing, Sub: 0}},
		{100, Position{Stage: StageOngoing, Sub: 0}},
	}
	for _, tt := range tests {
		if got := SelectStage(tt.count); got != tt.want {
			t.Errorf("SelectStage(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestOngoingCycleLength(t *testing.T) {
	for n := 4; n < 40; n++ {
		if SelectStage(n) != SelectStage(n+3) {
			t.Fatalf("SelectStage(%d) != SelectStage(%d)", n, n+3)
		}
	}
}

func TestPositionString(t *testing.T) {
	if got := SelectStage(2).String(); got != "followup_2" {
		t.Errorf("got %q, want followup_2", got)
	}
	if got := SelectStage(5).String(); got != "ongoing/1" {
		t.Errorf("got %q, want ongoing/1", got)
	}
}
