// Package risk extracts clinical indicators from free text and scores them
// with a logistic diabetes-risk model.
package risk

// Features holds the fixed vocabulary of clinical indicators. A nil field
// means the indicator was not present in the text; values are only ever
// extracted, never inferred.
type Features struct {
	Pregnancies   *float64 `json:"pregnancies,omitempty"`
	Glucose       *float64 `json:"glucose,omitempty"`
	BloodPressure *float64 `json:"blood_pressure,omitempty"`
	SkinThickness *float64 `json:"skin_thickness,omitempty"`
	Insulin       *float64 `json:"insulin,omitempty"`
	BMI           *float64 `json:"bmi,omitempty"`
	Pedigree      *float64 `json:"pedigree,omitempty"`
	Age           *float64 `json:"age,omitempty"`
}

// Count returns the number of non-nil indicators.
func (f Features) Count() int {
	n := 0
	for _, v := range f.fields() {
		if v != nil {
			n++
		}
	}
	return n
}

// Empty reports whether no indicator was found. An empty feature set
// skips scoring entirely.
func (f Features) Empty() bool {
	return f.Count() == 0
}

// Present returns the non-nil indicators keyed by display name, for
// rendering the risk section of an answer.
func (f Features) Present() map[string]float64 {
	out := make(map[string]float64)
	names := [...]string{"pregnancies", "glucose", "blood pressure", "skin thickness", "insulin", "bmi", "pedigree", "age"}
	for i, v := range f.fields() {
		if v != nil {
			out[names[i]] = *v
		}
	}
	return out
}

func (f Features) fields() [8]*float64 {
	return [8]*float64{
		f.Pregnancies, f.Glucose, f.BloodPressure, f.SkinThickness,
		f.Insulin, f.BMI, f.Pedigree, f.Age,
	}
}

// Assessment is the scorer output attached to an answered turn.
type Assessment struct {
	Probability float64  `json:"probability"`
	Flag        bool     `json:"flag"`
	Features    Features `json:"features"`
}
