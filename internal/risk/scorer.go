package risk

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable reports that the scoring model failed to load. The pipeline
// continues without an assessment.
var ErrUnavailable = errors.New("risk: scoring model unavailable")

//go:embed model.json
var modelJSON []byte

// modelWeights is a logistic regression fit on the Pima Indians diabetes
// dataset. Defaults are the training-set medians used for imputation.
type modelWeights struct {
	Intercept    float64 `json:"intercept"`
	Coefficients struct {
		Pregnancies   float64 `json:"pregnancies"`
		Glucose       float64 `json:"glucose"`
		BloodPressure float64 `json:"blood_pressure"`
		SkinThickness float64 `json:"skin_thickness"`
		Insulin       float64 `json:"insulin"`
		BMI           float64 `json:"bmi"`
		Pedigree      float64 `json:"pedigree"`
		Age           float64 `json:"age"`
	} `json:"coefficients"`
	Threshold float64 `json:"threshold"`
	Defaults  struct {
		Pregnancies   float64 `json:"pregnancies"`
		Glucose       float64 `json:"glucose"`
		BloodPressure float64 `json:"blood_pressure"`
		SkinThickness float64 `json:"skin_thickness"`
		Insulin       float64 `json:"insulin"`
		BMI           float64 `json:"bmi"`
		Pedigree      float64 `json:"pedigree"`
		Age           float64 `json:"age"`
	} `json:"defaults"`
}

// Scorer maps a feature set to a risk probability and flag. The model is
// loaded once at construction and never mutated, so a single Scorer is
// shared lock-free across concurrent requests.
type Scorer struct {
	model modelWeights
}

// NewScorer parses the embedded model weights.
func NewScorer() (*Scorer, error) {
	var m modelWeights
	if err := json.Unmarshal(modelJSON, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return nil, fmt.Errorf("%w: threshold %v outside (0, 1)", ErrUnavailable, m.Threshold)
	}
	return &Scorer{model: m}, nil
}

// Threshold returns the decision threshold for the risk flag.
func (s *Scorer) Threshold() float64 {
	return s.model.Threshold
}

// Score computes the risk probability for a feature set. Missing indicators
// are imputed with fixed population medians first, so the same inputs always
// score the same. Pure function: no state, no side effects.
func (s *Scorer) Score(_ context.Context, f Features) (Assessment, error) {
	m := s.model
	z := m.Intercept +
		m.Coefficients.Pregnancies*impute(f.Pregnancies, m.Defaults.Pregnancies) +
		m.Coefficients.Glucose*impute(f.Glucose, m.Defaults.Glucose) +
		m.Coefficients.BloodPressure*impute(f.BloodPressure, m.Defaults.BloodPressure) +
		m.Coefficients.SkinThickness*impute(f.SkinThickness, m.Defaults.SkinThickness) +
		m.Coefficients.Insulin*impute(f.Insulin, m.Defaults.Insulin) +
		m.Coefficients.BMI*impute(f.BMI, m.Defaults.BMI) +
		m.Coefficients.Pedigree*impute(f.Pedigree, m.Defaults.Pedigree) +
		m.Coefficients.Age*impute(f.Age, m.Defaults.Age)

	p := 1 / (1 + math.Exp(-z))

	return Assessment{
		Probability: p,
		Flag:        p >= m.Threshold,
		Features:    f,
	}, nil
}

func impute(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

// UnavailableScorer is wired at startup when the model cannot be loaded.
// Every call reports ErrUnavailable with the load-time cause.
type UnavailableScorer struct {
	cause error
}

// NewUnavailableScorer records why the model could not be loaded.
func NewUnavailableScorer(cause error) *UnavailableScorer {
	return &UnavailableScorer{cause: cause}
}

// Score always fails with ErrUnavailable.
func (u *UnavailableScorer) Score(context.Context, Features) (Assessment, error) {
	return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, u.cause)
}
