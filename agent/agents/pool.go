package agents

import (
	"context"
	"fmt"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	llmx "github.com/prachya-t/tickerchat/agent/llm"
	promptx "github.com/prachya-t/tickerchat/agent/prompt"
	toolx "github.com/prachya-t/tickerchat/agent/tool"
)

// Pool wires one agent per role with its own model configuration.
type Pool struct {
	coordinator *Coordinator
	analyst     *Analyst
	researcher  *Researcher
}

// NewPool builds the three conversation agents. The researcher's model is
// bound to the tool catalog; the analyst's is not, so it cannot emit calls
// even if prompted to.
func NewPool(ctx context.Context, cfg llmx.Config, human contractx.HumanInput) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	coordinator, err := NewCoordinator(human)
	if err != nil {
		return nil, err
	}

	analystCfg := cfg.OpenRouterFor(contractx.RoleAnalyst)
	analystModel, err := analystCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: build analyst model: %v", contractx.ErrFatal, err)
	}
	analyst, err := NewAnalyst(NewModelCompleter(analystModel), prompts.Analyst)
	if err != nil {
		return nil, err
	}

	researcherCfg := cfg.OpenRouterFor(contractx.RoleResearcher)
	researcherModel, err := researcherCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: build researcher model: %v", contractx.ErrFatal, err)
	}
	toolModel, err := researcherModel.WithTools(toolx.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools to researcher model: %v", contractx.ErrFatal, err)
	}
	researcher, err := NewResearcher(NewModelCompleter(toolModel), prompts.Researcher)
	if err != nil {
		return nil, err
	}

	return &Pool{coordinator: coordinator, analyst: analyst, researcher: researcher}, nil
}

// Agents returns the pool keyed by role, the shape the session expects.
func (p *Pool) Agents() map[contractx.Role]contractx.Agent {
	return map[contractx.Role]contractx.Agent{
		contractx.RoleCoordinator: p.coordinator,
		contractx.RoleAnalyst:     p.analyst,
		contractx.RoleResearcher:  p.researcher,
	}
}

// Coordinator exposes the approver half of the coordinator for tool vetting.
func (p *Pool) Coordinator() *Coordinator { return p.coordinator }
