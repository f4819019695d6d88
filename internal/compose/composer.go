// Package compose synthesizes the final answer from whatever material the
// pipeline gathered: knowledge passages, web results, or neither, plus an
// optional risk assessment.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/medigenius/medigenius/internal/risk"
	"github.com/medigenius/medigenius/internal/websearch"
)

// ErrUnavailable reports that answer generation failed. Unlike the other
// pipeline stages this is terminal: the turn is aborted and nothing is
// persisted.
var ErrUnavailable = errors.New("compose: generative model unavailable")

const systemPrompt = `You are a careful medical information assistant. Answer the user's question using the provided context when it is given. When reference passages are provided, ground your answer in them and cite them with their [source:...] markers. Be factual and concise. Always remind the user that you are not a substitute for professional medical advice when the question concerns their personal health.`

// Passage is one knowledge-base snippet handed to the composer.
type Passage struct {
	SourceID string
	Text     string
}

// Input is the material available for one answer.
type Input struct {
	Question   string
	Passages   []Passage
	WebResults []websearch.Result
	Risk       *risk.Assessment
}

// RiskSection is the structured risk block attached to an answer when the
// assessment flag is raised. It stays separate from the narrative text so
// the presentation layer can render it as a distinct element.
type RiskSection struct {
	Probability float64            `json:"probability"`
	Indicators  map[string]float64 `json:"indicators"`
	Disclaimer  string             `json:"disclaimer"`
}

// Answer is one composed response.
type Answer struct {
	Text        string
	RiskSection *RiskSection
}

// Config controls the composer.
type Config struct {
	// ModelName selects the generative model, e.g. gemini-2.5-flash.
	ModelName string

	// Timeout bounds one generation call. Generation is the heaviest call
	// in the pipeline, so this is deliberately generous.
	Timeout time.Duration
}

func (c *Config) validate() error {
	if c.ModelName == "" {
		return errors.New("compose: model name is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return nil
}

// Composer generates answers through Genkit. It is safe for concurrent use.
type Composer struct {
	g      *genkit.Genkit
	cfg    Config
	logger *slog.Logger
}

// New creates a Composer.
func New(g *genkit.Genkit, cfg Config, logger *slog.Logger) (*Composer, error) {
	if g == nil {
		return nil, errors.New("compose: genkit instance is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{g: g, cfg: cfg, logger: logger}, nil
}

// Compose generates one answer. Any generation failure, including timeout,
// maps to ErrUnavailable. There is no retry.
func (c *Composer) Compose(ctx context.Context, in Input) (Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := BuildPrompt(in)

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
		ai.WithModelName(c.cfg.ModelName),
	)
	if err != nil {
		c.logger.Error("answer generation failed", "error", err)
		return Answer{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Answer{}, fmt.Errorf("%w: model returned empty answer", ErrUnavailable)
	}

	answer := Answer{Text: text}
	if in.Risk != nil && in.Risk.Flag {
		answer.RiskSection = BuildRiskSection(in.Risk)
	}

	c.logger.Debug("composed answer",
		"passages", len(in.Passages),
		"web_results", len(in.WebResults),
		"has_risk_section", answer.RiskSection != nil)
	return answer, nil
}

// BuildPrompt assembles the generation prompt from the gathered material.
// Deterministic: identical input always yields an identical prompt.
func BuildPrompt(in Input) string {
	var b strings.Builder

	if len(in.Passages) > 0 {
		b.WriteString("Reference passages:\n")
		for _, p := range in.Passages {
			fmt.Fprintf(&b, "[source:%s] %s\n", p.SourceID, p.Text)
		}
		b.WriteString("\n")
	}

	if len(in.WebResults) > 0 {
		b.WriteString("Web search results:\n")
		for _, r := range in.WebResults {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", r.Title, r.Snippet, r.URL)
		}
		b.WriteString("\n")
	}

	if in.Risk != nil && in.Risk.Flag {
		b.WriteString("A screening model flagged elevated diabetes risk ")
		fmt.Fprintf(&b, "(probability %.2f) based on: %s.\n", in.Risk.Probability, indicatorSummary(in.Risk.Features))
		b.WriteString("Acknowledge this in your answer and advise consulting a clinician.\n\n")
	}

	b.WriteString("Question: ")
	b.WriteString(in.Question)
	return b.String()
}

// BuildRiskSection renders the structured risk block from an assessment.
// Only indicators actually extracted from the user's text are listed,
// never imputed values.
func BuildRiskSection(a *risk.Assessment) *RiskSection {
	return &RiskSection{
		Probability: a.Probability,
		Indicators:  a.Features.Present(),
		Disclaimer:  "This screening estimate is not a diagnosis. Please consult a healthcare professional.",
	}
}

func indicatorSummary(f risk.Features) string {
	present := f.Present()
	parts := make([]string, 0, len(present))
	// Fixed ordering keeps the prompt deterministic.
	for _, name := range [...]string{"pregnancies", "glucose", "blood pressure", "skin thickness", "insulin", "bmi", "pedigree", "age"} {
		if v, ok := present[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%g", name, v))
		}
	}
	return strings.Join(parts, ", ")
}
