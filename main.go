package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/prachya-t/tickerchat/agent/agents"
	"github.com/prachya-t/tickerchat/agent/analysis"
	"github.com/prachya-t/tickerchat/agent/cache"
	contractx "github.com/prachya-t/tickerchat/agent/contract"
	llmx "github.com/prachya-t/tickerchat/agent/llm"
	promptx "github.com/prachya-t/tickerchat/agent/prompt"
	sessionx "github.com/prachya-t/tickerchat/agent/session"
	storex "github.com/prachya-t/tickerchat/agent/store"
	toolx "github.com/prachya-t/tickerchat/agent/tool"
	configx "github.com/prachya-t/tickerchat/pkg/config"
	_ "github.com/prachya-t/tickerchat/pkg/logger/autoload"
	openrouterx "github.com/prachya-t/tickerchat/pkg/openrouter"
)

// consoleInput reads one line per prompt from stdin. Reads run on their own
// goroutine so a checkpoint deadline can lapse while the terminal stays open.
type consoleInput struct {
	lines chan string
}

func newConsoleInput() *consoleInput {
	ci := &consoleInput{lines: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			ci.lines <- scanner.Text()
		}
		close(ci.lines)
	}()
	return ci
}

func (ci *consoleInput) Prompt(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	select {
	case line, ok := <-ci.lines:
		if !ok {
			return "", contractx.ErrTerminated
		}
		return line, nil
	case <-ctx.Done():
		fmt.Println()
		return "", ctx.Err()
	}
}

func printMessage(msg contractx.Message) {
	switch {
	case msg.ToolResult != nil && msg.ToolResult.Failed():
		fmt.Printf("\n[%s] tool %s failed: %s\n", msg.Speaker, msg.ToolResult.Name, msg.ToolResult.Err)
	case msg.ToolResult != nil:
		fmt.Printf("\n[%s]\n%s\n", msg.Speaker, msg.ToolResult.Content)
	case msg.Role == contractx.RoleCoordinator && !msg.Auto:
		// The human already saw their own input.
	default:
		fmt.Printf("\n[%s] %s\n", msg.Speaker, msg.Content)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")

	openRouterClient := openrouterx.NewClient(openrouterx.Config{
		BaseURL:  llmCfg.BaseURL,
		APIKey:   llmCfg.APIKey,
		Model:    llmCfg.Model,
		SiteURL:  llmCfg.SiteURL,
		SiteName: llmCfg.SiteName,
	})
	if openRouterClient == nil {
		log.Fatal().Msg("openrouter credentials missing")
	}

	storeCfg := configx.MustNew[storex.Config]("PG")
	vectorStore, err := storex.NewPGVectorStore(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect vector store")
	}
	defer vectorStore.Close()

	var resultCache contractx.Cache
	cacheCfg, err := configx.New[cache.Config]("UPSTASH")
	if err == nil {
		client, cerr := cache.NewUpstashClient(*cacheCfg)
		if cerr != nil {
			log.Warn().Err(cerr).Msg("cache unavailable, continuing without write-through")
		} else {
			resultCache = client
		}
	} else {
		log.Warn().Err(err).Msg("cache not configured, continuing without write-through")
	}

	svc, err := analysis.New(vectorStore, resultCache)
	if err != nil {
		log.Fatal().Err(err).Msg("build analysis service")
	}

	gateway, err := toolx.NewGateway(svc)
	if err != nil {
		log.Fatal().Err(err).Msg("build tool gateway")
	}

	human := newConsoleInput()
	pool, err := agents.NewPool(ctx, *llmCfg, human)
	if err != nil {
		log.Fatal().Err(err).Msg("build agent pool")
	}

	sessCfg := configx.MustNew[struct {
		MaxRounds int `envconfig:"MAX_ROUNDS" split_words:"true" default:"20"`
	}]("SESSION")

	poolAgents := pool.Agents()
	ordered := make([]contractx.Agent, 0, len(poolAgents))
	for _, role := range sessionx.DefaultRoleCycle {
		ordered = append(ordered, poolAgents[role])
	}

	sess, err := sessionx.New(sessionx.Config{
		MaxRounds: sessCfg.MaxRounds,
		OnMessage: printMessage,
	}, ordered, gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("build session")
	}

	fmt.Println(promptx.LoadPromptSet().Welcome)
	fmt.Println()

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("session failed")
	}
	fmt.Println("Session ended.")
}
