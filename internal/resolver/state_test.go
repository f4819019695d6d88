package resolver

import (
	"context"
	"testing"

	"github.com/medigenius/medigenius/internal/compose"
	"github.com/medigenius/medigenius/internal/knowledge"
	"github.com/medigenius/medigenius/internal/risk"
	"github.com/medigenius/medigenius/internal/websearch"
)

func newTestExecution(t *testing.T, d *deps, message string) *execution {
	t.Helper()
	return &execution{
		r:   newTestResolver(t, d),
		req: Request{Message: message},
	}
}

func TestGather_TransitionDependsOnFeatures(t *testing.T) {
	d := defaultDeps()

	e := newTestExecution(t, d, "my glucose is 180")
	if next := e.gather(context.Background()); next != StateScoring {
		t.Errorf("gather() with indicators = %v, want scoring", next)
	}

	e = newTestExecution(t, d, "what is insulin resistance?")
	if next := e.gather(context.Background()); next != StateDecidingSufficiency {
		t.Errorf("gather() without indicators = %v, want deciding_sufficiency", next)
	}
}

func TestGather_JoinsBothBranches(t *testing.T) {
	d := defaultDeps()
	d.retriever.results = []knowledge.Result{passage(0.9)}

	e := newTestExecution(t, d, "I am 45 with glucose 170")
	e.gather(context.Background())

	if len(e.passages) != 1 {
		t.Errorf("passages = %d, want retrieval joined", len(e.passages))
	}
	if e.features.Empty() {
		t.Error("features empty, want extraction joined")
	}
}

func TestScore_Transitions(t *testing.T) {
	d := defaultDeps()
	d.scorer.assessment = risk.Assessment{Probability: 0.7, Flag: true}

	e := newTestExecution(t, d, "")
	e.features = risk.Features{Glucose: fptrTest(180)}
	if next := e.score(context.Background()); next != StateDecidingSufficiency {
		t.Errorf("score() = %v, want deciding_sufficiency", next)
	}
	if e.assessment == nil {
		t.Fatal("assessment not recorded")
	}

	d.scorer.err = risk.ErrUnavailable
	e = newTestExecution(t, d, "")
	e.features = risk.Features{Glucose: fptrTest(180)}
	if next := e.score(context.Background()); next != StateDecidingSufficiency {
		t.Errorf("score() on unavailable model = %v, want deciding_sufficiency", next)
	}
	if e.assessment != nil {
		t.Error("unavailable model must leave assessment nil")
	}
}

func TestDecide_Transitions(t *testing.T) {
	d := defaultDeps()

	e := newTestExecution(t, d, "")
	e.passages = []knowledge.Result{passage(0.85), passage(0.70)}
	if next := e.decide(); next != StateComposing {
		t.Errorf("decide() sufficient = %v, want composing", next)
	}
	if !e.sufficient {
		t.Error("sufficient not recorded")
	}

	e = newTestExecution(t, d, "")
	e.passages = []knowledge.Result{passage(0.85)}
	if next := e.decide(); next != StateFallbackRetrieving {
		t.Errorf("decide() insufficient = %v, want fallback_retrieving", next)
	}

	e = newTestExecution(t, d, "")
	e.passages = []knowledge.Result{passage(0.85), passage(0.70)}
	e.retrievalErr = knowledge.ErrUnavailable
	if next := e.decide(); next != StateFallbackRetrieving {
		t.Errorf("decide() with unavailable index = %v, want fallback_retrieving", next)
	}
}

func TestFallbackSearch_AlwaysReachesComposing(t *testing.T) {
	d := defaultDeps()
	d.fallback.results = []websearch.Result{{Title: "hit"}}

	e := newTestExecution(t, d, "q")
	if next := e.fallbackSearch(context.Background()); next != StateComposing {
		t.Errorf("fallbackSearch() = %v, want composing", next)
	}
	if len(e.webResults) != 1 {
		t.Error("web results not recorded")
	}

	d.fallback.err = websearch.ErrUnavailable
	e = newTestExecution(t, d, "q")
	if next := e.fallbackSearch(context.Background()); next != StateComposing {
		t.Errorf("fallbackSearch() on outage = %v, want composing", next)
	}
	if len(e.webResults) != 0 {
		t.Error("outage must leave no web results")
	}
}

func TestCompose_Transitions(t *testing.T) {
	d := defaultDeps()

	e := newTestExecution(t, d, "q")
	if next := e.compose(context.Background()); next != StateTagging {
		t.Errorf("compose() = %v, want tagging", next)
	}

	d.composer.err = compose.ErrUnavailable
	e = newTestExecution(t, d, "q")
	if next := e.compose(context.Background()); next != StateAborted {
		t.Errorf("compose() on failure = %v, want aborted", next)
	}
	if e.abortErr == nil {
		t.Error("abort error not recorded")
	}
}

func TestCompose_PassagesOnlyWhenSufficient(t *testing.T) {
	d := defaultDeps()

	e := newTestExecution(t, d, "q")
	e.passages = []knowledge.Result{passage(0.85), passage(0.70)}
	e.sufficient = false
	e.compose(context.Background())
	if len(d.composer.lastInput().Passages) != 0 {
		t.Error("insufficient passages leaked to composer")
	}

	e.sufficient = true
	e.compose(context.Background())
	if len(d.composer.lastInput().Passages) != 2 {
		t.Errorf("composer received %d passages, want 2", len(d.composer.lastInput().Passages))
	}
	if d.composer.lastInput().Passages[0].SourceID == "" {
		t.Error("passages must carry citable source identifiers")
	}
}

func TestTag_Classification(t *testing.T) {
	tests := []struct {
		name       string
		sufficient bool
		webResults int
		want       Provenance
	}{
		{"knowledge base", true, 0, ProvenanceKnowledgeBase},
		{"web fallback", false, 2, ProvenanceWebFallback},
		{"general", false, 0, ProvenanceGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := defaultDeps()
			e := newTestExecution(t, d, "q")
			e.sufficient = tt.sufficient
			for i := 0; i < tt.webResults; i++ {
				e.webResults = append(e.webResults, websearch.Result{})
			}
			if next := e.tag(); next != StatePersisting {
				t.Errorf("tag() = %v, want persisting", next)
			}
			if e.provenance != tt.want {
				t.Errorf("provenance = %v, want %v", e.provenance, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	known := []State{
		StateStart, StateGathering, StateScoring, StateDecidingSufficiency,
		StateFallbackRetrieving, StateComposing, StateTagging, StatePersisting,
		StateDone, StateAborted,
	}
	seen := make(map[string]bool, len(known))
	for _, s := range known {
		name := s.String()
		if name == "unknown" || seen[name] {
			t.Errorf("state %d has bad name %q", s, name)
		}
		seen[name] = true
	}
	if State(99).String() != "unknown" {
		t.Error("out-of-range state must stringify as unknown")
	}
}

func fptrTest(v float64) *float64 { return &v }
