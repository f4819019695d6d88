package cmd

import (
	"slices"
	"testing"
)

func TestSplitPassages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "paragraphs",
			text: "first passage\n\nsecond passage\n\nthird",
			want: []string{"first passage", "second passage", "third"},
		},
		{
			name: "extra blank lines",
			text: "first\n\n\n\nsecond\n\n",
			want: []string{"first", "second"},
		},
		{
			name: "single block",
			text: "only one\nwith a continuation line",
			want: []string{"only one\nwith a continuation line"},
		},
		{
			name: "whitespace only",
			text: "   \n\n\t\n",
			want: nil,
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitPassages(tt.text)
			if !slices.Equal(got, tt.want) {
				t.Errorf("splitPassages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngestable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"notes.txt", true},
		{"guide.md", true},
		{"GUIDE.MD", true},
		{"data.csv", false},
		{"binary", false},
	}

	for _, tt := range tests {
		if got := ingestable(tt.path); got != tt.want {
			t.Errorf("ingestable(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRootCommandWiring(t *testing.T) {
	want := []string{"serve", "migrate", "ingest", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing subcommand %q", name)
		}
	}
}
