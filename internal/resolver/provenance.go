package resolver

import "fmt"

// Provenance is the closed set of labels marking which material source
// backed an answer. Exactly one tag is assigned per turn, computed after
// composition from what the composer actually consumed.
type Provenance int

const (
	// ProvenanceKnowledgeBase marks answers grounded in sufficient
	// knowledge-base retrieval.
	ProvenanceKnowledgeBase Provenance = iota
	// ProvenanceWebFallback marks answers grounded in external search
	// results after insufficient retrieval.
	ProvenanceWebFallback
	// ProvenanceGeneral marks answers composed without any source material.
	ProvenanceGeneral
)

// String returns the wire representation of the tag.
func (p Provenance) String() string {
	switch p {
	case ProvenanceKnowledgeBase:
		return "knowledge_base"
	case ProvenanceWebFallback:
		return "web_fallback"
	case ProvenanceGeneral:
		return "general"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the tag as its string form.
func (p Provenance) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a tag.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"knowledge_base"`:
		*p = ProvenanceKnowledgeBase
	case `"web_fallback"`:
		*p = ProvenanceWebFallback
	case `"general"`:
		*p = ProvenanceGeneral
	default:
		return fmt.Errorf("unknown provenance %s", data)
	}
	return nil
}

// classifyProvenance derives the tag from the material the composer used.
// Knowledge-base material wins over web material; the two are never mixed
// because fallback only runs when retrieval was insufficient.
func classifyProvenance(usedKnowledge, usedWeb bool) Provenance {
	switch {
	case usedKnowledge:
		return ProvenanceKnowledgeBase
	case usedWeb:
		return ProvenanceWebFallback
	default:
		return ProvenanceGeneral
	}
}
