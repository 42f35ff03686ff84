package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	openrouterx "github.com/prachya-t/tickerchat/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	AnalystModel          string  `envconfig:"ANALYST_MODEL" split_words:"true"`
	ResearcherModel       string  `envconfig:"RESEARCHER_MODEL" split_words:"true"`
	AnalystTemperature    float32 `envconfig:"ANALYST_TEMPERATURE" split_words:"true" default:"-1"`
	ResearcherTemperature float32 `envconfig:"RESEARCHER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model and temperature for one role, falling back
// to the shared defaults when no per-role override is set.
func (c Config) OpenRouterFor(role contractx.Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case contractx.RoleAnalyst:
		if v := strings.TrimSpace(c.AnalystModel); v != "" {
			modelName = v
		}
		if c.AnalystTemperature >= 0 {
			temp = c.AnalystTemperature
		}
	case contractx.RoleResearcher:
		if v := strings.TrimSpace(c.ResearcherModel); v != "" {
			modelName = v
		}
		if c.ResearcherTemperature >= 0 {
			temp = c.ResearcherTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
