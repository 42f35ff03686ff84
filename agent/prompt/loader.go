package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/analyst.txt
	analystRaw string

	//go:embed template/researcher.txt
	researcherRaw string

	//go:embed template/welcome.txt
	welcomeRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Analyst    string
	Researcher string
	Welcome    string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Analyst:    strings.TrimSpace(analystRaw),
		Researcher: strings.TrimSpace(researcherRaw),
		Welcome:    strings.TrimSpace(welcomeRaw),
	}
}
