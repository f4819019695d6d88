package compose

import (
	"strings"
	"testing"

	"github.com/medigenius/medigenius/internal/risk"
	"github.com/medigenius/medigenius/internal/websearch"
)

func fptr(v float64) *float64 { return &v }

func TestBuildPrompt_WithPassages(t *testing.T) {
	prompt := BuildPrompt(Input{
		Question: "what is a normal fasting glucose?",
		Passages: []Passage{
			{SourceID: "doc-1", Text: "Fasting glucose below 100 mg/dL is considered normal."},
			{SourceID: "doc-2", Text: "Values of 126 mg/dL or higher indicate diabetes."},
		},
	})

	if !strings.Contains(prompt, "[source:doc-1]") || !strings.Contains(prompt, "[source:doc-2]") {
		t.Errorf("prompt missing source markers:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: what is a normal fasting glucose?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
}

func TestBuildPrompt_WithWebResults(t *testing.T) {
	prompt := BuildPrompt(Input{
		Question: "newest metformin guidance",
		WebResults: []websearch.Result{
			{Title: "Metformin overview", Snippet: "First-line therapy.", URL: "https://example.org/metformin"},
		},
	})

	if !strings.Contains(prompt, "Web search results:") {
		t.Errorf("prompt missing web section:\n%s", prompt)
	}
	if strings.Contains(prompt, "Reference passages:") {
		t.Errorf("prompt must not claim passages it does not have:\n%s", prompt)
	}
}

func TestBuildPrompt_BareQuestion(t *testing.T) {
	prompt := BuildPrompt(Input{Question: "hello"})

	if strings.Contains(prompt, "Reference passages:") || strings.Contains(prompt, "Web search results:") {
		t.Errorf("bare prompt must carry no context sections:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, "Question: hello") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestBuildPrompt_FlaggedRisk(t *testing.T) {
	in := Input{
		Question: "am I at risk?",
		Risk: &risk.Assessment{
			Probability: 0.86,
			Flag:        true,
			Features:    risk.Features{Glucose: fptr(180), BMI: fptr(32)},
		},
	}
	prompt := BuildPrompt(in)

	if !strings.Contains(prompt, "0.86") {
		t.Errorf("prompt missing probability:\n%s", prompt)
	}
	if !strings.Contains(prompt, "glucose=180") || !strings.Contains(prompt, "bmi=32") {
		t.Errorf("prompt missing extracted indicators:\n%s", prompt)
	}
	if strings.Contains(prompt, "age=") {
		t.Errorf("prompt must not mention imputed indicators:\n%s", prompt)
	}
}

func TestBuildPrompt_UnflaggedRiskOmitted(t *testing.T) {
	prompt := BuildPrompt(Input{
		Question: "am I at risk?",
		Risk:     &risk.Assessment{Probability: 0.2, Flag: false, Features: risk.Features{Age: fptr(30)}},
	})

	if strings.Contains(prompt, "flagged") {
		t.Errorf("unflagged assessment must not appear in prompt:\n%s", prompt)
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	in := Input{
		Question: "same question",
		Risk: &risk.Assessment{
			Probability: 0.7,
			Flag:        true,
			Features:    risk.Features{Glucose: fptr(150), Age: fptr(50), BMI: fptr(31)},
		},
	}
	if BuildPrompt(in) != BuildPrompt(in) {
		t.Error("identical input produced different prompts")
	}
}

func TestBuildRiskSection(t *testing.T) {
	section := BuildRiskSection(&risk.Assessment{
		Probability: 0.86,
		Flag:        true,
		Features:    risk.Features{Glucose: fptr(180), Age: fptr(45)},
	})

	if section.Probability != 0.86 {
		t.Errorf("Probability = %v, want 0.86", section.Probability)
	}
	if len(section.Indicators) != 2 {
		t.Errorf("Indicators = %v, want exactly the extracted ones", section.Indicators)
	}
	if section.Indicators["glucose"] != 180 {
		t.Errorf("Indicators[glucose] = %v, want 180", section.Indicators["glucose"])
	}
	if section.Disclaimer == "" {
		t.Error("Disclaimer must not be empty")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{ModelName: "gemini-2.5-flash"}, nil); err == nil {
		t.Error("New() expected error for nil genkit instance")
	}
}
