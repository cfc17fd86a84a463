package protocol

import "time"

// TurnEvent reports progress of one conversation turn.
type TurnEvent struct {
	TurnID    string    `json:"turn_id"`
	Turn      int       `json:"turn"`
	Stage     string    `json:"stage"`
	Text      string    `json:"text,omitempty"`
	Files     []string  `json:"files,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTurnSegment = "turn"

	StageRecorded    = "recorded"
	StageTranscribed = "transcribed"
	StagePrompted    = "prompted"
	StageReplied     = "replied"
	StageSynthesized = "synthesized"
	StagePlayed      = "played"
	StageSkipped     = "skipped"
)

// TurnSubject is the subject a stage event is published on, e.g.
// "converse.turn.replied".
func TurnSubject(prefix, stage string) string {
	if prefix == "" {
		return SubjectTurnSegment + "." + stage
	}
	return prefix + "." + SubjectTurnSegment + "." + stage
}

// TurnWildcard matches every turn event under prefix.
func TurnWildcard(prefix string) string {
	return TurnSubject(prefix, ">")
}
