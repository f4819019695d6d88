// Package resolver turns one inbound question into a sourced, optionally
// risk-annotated answer. It sequences retrieval, feature extraction,
// scoring, fallback search, composition, provenance tagging, and
// persistence as an explicit state machine, enforcing the degradation and
// atomicity rules of the pipeline.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/compose"
	"github.com/medigenius/medigenius/internal/knowledge"
	"github.com/medigenius/medigenius/internal/risk"
	"github.com/medigenius/medigenius/internal/session"
	"github.com/medigenius/medigenius/internal/websearch"
)

// ErrAborted reports a terminal composition failure. The caller receives a
// generic failure outcome and nothing is appended to the conversation.
var ErrAborted = errors.New("resolver: turn aborted")

// Retriever searches the knowledge base. Empty results are valid; an index
// that failed to load reports knowledge.ErrUnavailable for the process
// lifetime.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Extractor parses clinical indicators from text. It cannot fail.
type Extractor interface {
	Extract(text string) risk.Features
}

// Scorer maps a feature set to a risk assessment. A model that failed to
// load reports risk.ErrUnavailable.
type Scorer interface {
	Score(ctx context.Context, f risk.Features) (risk.Assessment, error)
}

// FallbackSearcher queries the external search provider.
type FallbackSearcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// Composer generates the answer text.
type Composer interface {
	Compose(ctx context.Context, in compose.Input) (compose.Answer, error)
}

// TurnStore appends completed turns atomically.
type TurnStore interface {
	AppendTurn(ctx context.Context, sessionID uuid.UUID, turn session.Turn) error
}

// RetrievalPolicy is the sufficiency test for knowledge-base retrieval:
// retrieval counts as sufficient iff at least MinPassages passages come
// back and the top similarity exceeds SimilarityThreshold.
//
// Zero values take the defaults (0.60, 2, 4). A literal zero threshold is
// therefore not expressible; it would accept any passage the index
// returns, which the sufficiency test is there to prevent.
type RetrievalPolicy struct {
	SimilarityThreshold float32
	MinPassages         int
	TopK                int
}

// Config wires a Resolver.
type Config struct {
	Retriever Retriever
	Extractor Extractor
	Scorer    Scorer
	Fallback  FallbackSearcher
	Composer  Composer
	Turns     TurnStore
	Policy    RetrievalPolicy
	Logger    *slog.Logger
}

func (c *Config) validate() error {
	if c.Retriever == nil {
		return errors.New("resolver: retriever is required")
	}
	if c.Extractor == nil {
		return errors.New("resolver: extractor is required")
	}
	if c.Scorer == nil {
		return errors.New("resolver: scorer is required")
	}
	if c.Fallback == nil {
		return errors.New("resolver: fallback searcher is required")
	}
	if c.Composer == nil {
		return errors.New("resolver: composer is required")
	}
	if c.Turns == nil {
		return errors.New("resolver: turn store is required")
	}
	if c.Policy.SimilarityThreshold < 0 || c.Policy.SimilarityThreshold > 1 {
		return fmt.Errorf("resolver: similarity threshold %v outside [0, 1]", c.Policy.SimilarityThreshold)
	}
	if c.Policy.SimilarityThreshold == 0 {
		c.Policy.SimilarityThreshold = 0.60
	}
	if c.Policy.MinPassages <= 0 {
		c.Policy.MinPassages = 2
	}
	if c.Policy.TopK <= 0 {
		c.Policy.TopK = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Request is one inbound question.
type Request struct {
	SessionID uuid.UUID
	Message   string
}

// Response is the resolved answer.
type Response struct {
	Text        string               `json:"text"`
	Provenance  Provenance           `json:"provenance"`
	Risk        *risk.Assessment     `json:"risk_assessment,omitempty"`
	RiskSection *compose.RiskSection `json:"risk_section,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Resolver drives the resolution state machine. All capability handles are
// injected at construction, immutable afterwards, and shared lock-free
// across concurrent executions.
type Resolver struct {
	cfg Config
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve runs one execution of the state machine. Concurrent calls, even
// for the same session, are independent. If ctx is cancelled before
// composition completes, in-flight calls are cancelled and nothing is
// persisted.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Response, error) {
	e := &execution{r: r, req: req, state: StateStart}
	logger := r.cfg.Logger.With("session_id", req.SessionID)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("resolution state", "state", e.state.String())

		switch e.state {
		case StateStart:
			e.state = StateGathering
		case StateGathering:
			e.state = e.gather(ctx)
		case StateScoring:
			e.state = e.score(ctx)
		case StateDecidingSufficiency:
			e.state = e.decide()
		case StateFallbackRetrieving:
			e.state = e.fallbackSearch(ctx)
		case StateComposing:
			e.state = e.compose(ctx)
		case StateTagging:
			e.state = e.tag()
		case StatePersisting:
			if err := e.persist(ctx); err != nil {
				return nil, err
			}
			e.state = StateDone
		case StateDone:
			return e.response, nil
		case StateAborted:
			return nil, e.abortErr
		default:
			return nil, fmt.Errorf("resolver: invalid state %d", e.state)
		}
	}
}

// execution holds the material gathered during one run.
type execution struct {
	r     *Resolver
	req   Request
	state State

	passages     []knowledge.Result
	retrievalErr error
	features     risk.Features
	assessment   *risk.Assessment
	sufficient   bool
	webResults   []websearch.Result
	answer       compose.Answer
	provenance   Provenance
	abortErr     error
	response     *Response
}

// gather runs retrieval and feature extraction concurrently and joins both
// before anything downstream starts. Retrieval failure is recorded, not
// fatal; extraction cannot fail.
func (e *execution) gather(ctx context.Context) State {
	type retrievalOut struct {
		results []knowledge.Result
		err     error
	}
	retrievalCh := make(chan retrievalOut, 1)
	featuresCh := make(chan risk.Features, 1)

	go func() {
		results, err := e.r.cfg.Retriever.Search(ctx, e.req.Message, knowledge.WithTopK(e.r.cfg.Policy.TopK))
		retrievalCh <- retrievalOut{results: results, err: err}
	}()
	go func() {
		featuresCh <- e.r.cfg.Extractor.Extract(e.req.Message)
	}()

	retrieval := <-retrievalCh
	e.features = <-featuresCh

	e.passages, e.retrievalErr = retrieval.results, retrieval.err
	if e.retrievalErr != nil {
		e.r.cfg.Logger.Warn("retrieval degraded", "error", e.retrievalErr)
	}

	if e.features.Empty() {
		return StateDecidingSufficiency
	}
	return StateScoring
}

// score runs only when extraction found at least one indicator. An
// unavailable model means no assessment, never a failed turn.
func (e *execution) score(ctx context.Context) State {
	assessment, err := e.r.cfg.Scorer.Score(ctx, e.features)
	if err != nil {
		e.r.cfg.Logger.Warn("scoring unavailable, continuing without assessment", "error", err)
		return StateDecidingSufficiency
	}
	e.assessment = &assessment
	return StateDecidingSufficiency
}

func (e *execution) decide() State {
	policy := e.r.cfg.Policy
	e.sufficient = e.retrievalErr == nil &&
		len(e.passages) >= policy.MinPassages &&
		e.passages[0].Similarity > policy.SimilarityThreshold

	if e.sufficient {
		return StateComposing
	}
	return StateFallbackRetrieving
}

// fallbackSearch fully resolves, success or not, before composing starts.
// Failure means composing in no-external-source mode.
func (e *execution) fallbackSearch(ctx context.Context) State {
	results, err := e.r.cfg.Fallback.Search(ctx, e.req.Message)
	if err != nil {
		e.r.cfg.Logger.Warn("fallback search unavailable", "error", err)
		return StateComposing
	}
	e.webResults = results
	return StateComposing
}

func (e *execution) compose(ctx context.Context) State {
	in := compose.Input{
		Question:   e.req.Message,
		WebResults: e.webResults,
		Risk:       e.assessment,
	}
	if e.sufficient {
		in.Passages = make([]compose.Passage, len(e.passages))
		for i, p := range e.passages {
			in.Passages[i] = compose.Passage{
				SourceID: p.Document.ID.String(),
				Text:     p.Document.Content,
			}
		}
	}

	answer, err := e.r.cfg.Composer.Compose(ctx, in)
	if err != nil {
		e.r.cfg.Logger.Error("composition failed, aborting turn", "error", err)
		e.abortErr = fmt.Errorf("%w: %w", ErrAborted, err)
		return StateAborted
	}
	e.answer = answer
	return StateTagging
}

// tag derives the provenance label from what the composer actually
// consumed, never from what was merely attempted.
func (e *execution) tag() State {
	e.provenance = classifyProvenance(e.sufficient, len(e.webResults) > 0)
	return StatePersisting
}

func (e *execution) persist(ctx context.Context) error {
	turn := session.Turn{
		UserText:   e.req.Message,
		AnswerText: e.answer.Text,
		Source:     e.provenance.String(),
		Risk:       e.assessment,
	}
	if err := e.r.cfg.Turns.AppendTurn(ctx, e.req.SessionID, turn); err != nil {
		return fmt.Errorf("resolver: persist turn: %w", err)
	}

	e.response = &Response{
		Text:        e.answer.Text,
		Provenance:  e.provenance,
		Risk:        e.assessment,
		RiskSection: e.answer.RiskSection,
		Timestamp:   time.Now(),
	}

	e.r.cfg.Logger.Info("turn resolved",
		"provenance", e.provenance.String(),
		"risk_flagged", e.assessment != nil && e.assessment.Flag,
		"passages", len(e.passages),
		"web_results", len(e.webResults))
	return nil
}
