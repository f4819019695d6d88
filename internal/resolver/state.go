package resolver

// State identifies one stage of a resolution run. Every query traverses
// the machine exactly once:
//
//	Start → Gathering → Scoring? → DecidingSufficiency →
//	  {Composing | FallbackRetrieving → Composing} →
//	Tagging → Persisting → Done
//
// Aborted is reachable only from Composing, when generation fails.
type State int

const (
	// StateStart is the initial state before any work happens.
	StateStart State = iota
	// StateGathering runs retrieval and feature extraction concurrently.
	StateGathering
	// StateScoring runs the risk model over the extracted features.
	StateScoring
	// StateDecidingSufficiency applies the retrieval sufficiency test.
	StateDecidingSufficiency
	// StateFallbackRetrieving queries the external search provider.
	StateFallbackRetrieving
	// StateComposing generates the answer text.
	StateComposing
	// StateTagging assigns the provenance label.
	StateTagging
	// StatePersisting appends the completed turn.
	StatePersisting
	// StateDone is the terminal success state.
	StateDone
	// StateAborted is the terminal failure state.
	StateAborted
)

// String returns the state name for logs and tests.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateGathering:
		return "gathering"
	case StateScoring:
		return "scoring"
	case StateDecidingSufficiency:
		return "deciding_sufficiency"
	case StateFallbackRetrieving:
		return "fallback_retrieving"
	case StateComposing:
		return "composing"
	case StateTagging:
		return "tagging"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
