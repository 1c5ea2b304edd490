package conversation

import "fmt"

// Stage is the conversational phase that decides which reply table is consulted.
type Stage int

const (
	StageGreeting Stage = iota
	StageFollowup1
	StageFollowup2
	StageFollowup3
	StageOngoing
)

// ongoingCycle is the number of sub-positions rotated through once a
// conversation has left the scripted follow-ups.
const ongoingCycle = 3

func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "greeting"
	case StageFollowup1:
		return "followup_1"
	case StageFollowup2:
		return "followup_2"
	case StageFollowup3:
		return "followup_3"
	case StageOngoing:
		return "ongoing"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Position is a stage plus the rotation index used inside StageOngoing.
// Sub is always 0 for the scripted stages.
type Position struct {
	Stage Stage `json:"stage"`
	Sub   int   `json:"sub"`
}

func (p Position) String() string {
	if p.Stage == StageOngoing {
		return fmt.Sprintf("%s/%d", p.Stage, p.Sub)
	}
	return p.Stage.String()
}

// SelectStage maps a partner's completed message count to a conversation position.
// Negative counts are treated as a fresh conversation.
func SelectStage(messageCount int) Position {
	switch {
	case messageCount <= 0:
		return Position{Stage: StageGreeting}
	case messageCount == 1:
		return Position{Stage: StageFollowup1}
	case messageCount == 2:
		return Position{Stage: StageFollowup2}
	case messageCount == 3:
		return Position{Stage: StageFollowup3}
	default:
		return Position{Stage: StageOngoing, Sub: (messageCount - 4) % ongoingCycle}
	}
}
