package conversation

// State is the loop's position within a turn.
type State int

const (
	AwaitingRecordStart State = iota
	Recording
	Transcribing
	Prompting
	Generating
	Synthesizing
	Playing
)

func (s State) String() string {
	switch s {
	case AwaitingRecordStart:
		return "awaiting_record_start"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Prompting:
		return "prompting"
	case Generating:
		return "generating"
	case Synthesizing:
		return "synthesizing"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}
