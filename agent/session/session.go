package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	logx "github.com/prachya-t/tickerchat/pkg/logger"
)

const (
	defaultMaxRounds         = 20
	defaultCheckpointTimeout = 60 * time.Second
	defaultReplyText         = "Please continue with the analysis."
)

// DefaultRoleCycle is the fixed rotation order of the closed role set.
var DefaultRoleCycle = []contractx.Role{
	contractx.RoleCoordinator,
	contractx.RoleAnalyst,
	contractx.RoleResearcher,
}

// executorRole is the one role capable of executing tool calls.
const executorRole = contractx.RoleCoordinator

type Config struct {
	ID                string
	Roles             []contractx.Role
	MaxRounds         int
	CheckpointTimeout time.Duration
	DefaultReply      string
	// OnMessage observes every appended message; rendering lives outside.
	OnMessage func(contractx.Message)
}

// Session owns one conversation: the Transcript, the role cycle, and the
// serialized tool-call lifecycle. Exactly one speaker is active at a time;
// no session state is shared across sessions.
type Session struct {
	id         string
	transcript *Transcript
	agents     map[contractx.Role]contractx.Agent
	cycle      []contractx.Role
	gateway    contractx.ToolGateway

	maxRounds         int
	checkpointTimeout time.Duration
	defaultReply      string
	onMessage         func(contractx.Message)

	cursor       int
	closed       bool
	lastFellBack bool

	log zerolog.Logger
}

// New validates the role graph and wires the agents into it. A corrupted
// graph is fatal: the session refuses to start.
func New(cfg Config, agents []contractx.Agent, gateway contractx.ToolGateway) (*Session, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: tool gateway is required", contractx.ErrFatal)
	}

	cycle := cfg.Roles
	if len(cycle) == 0 {
		cycle = DefaultRoleCycle
	}
	if err := validateCycle(cycle); err != nil {
		return nil, err
	}

	byRole := make(map[contractx.Role]contractx.Agent, len(agents))
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("%w: nil agent in pool", contractx.ErrFatal)
		}
		if _, dup := byRole[a.Role()]; dup {
			return nil, fmt.Errorf("%w: duplicate agent for role=%s", contractx.ErrFatal, a.Role())
		}
		byRole[a.Role()] = a
	}
	for _, role := range cycle {
		if _, ok := byRole[role]; !ok {
			return nil, fmt.Errorf("%w: no agent bound for role=%s", contractx.ErrFatal, role)
		}
	}

	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = uuid.NewString()
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	checkpointTimeout := cfg.CheckpointTimeout
	if checkpointTimeout <= 0 {
		checkpointTimeout = defaultCheckpointTimeout
	}
	defaultReply := strings.TrimSpace(cfg.DefaultReply)
	if defaultReply == "" {
		defaultReply = defaultReplyText
	}

	return &Session{
		id:                id,
		transcript:        NewTranscript(),
		agents:            byRole,
		cycle:             append([]contractx.Role(nil), cycle...),
		gateway:           gateway,
		maxRounds:         maxRounds,
		checkpointTimeout: checkpointTimeout,
		defaultReply:      defaultReply,
		onMessage:         cfg.OnMessage,
		log:               logx.Component("session").With().Str("session_id", id).Logger(),
	}, nil
}

func validateCycle(cycle []contractx.Role) error {
	if len(cycle) < 2 {
		return fmt.Errorf("%w: role cycle needs at least two roles", contractx.ErrFatal)
	}
	hasExecutor := false
	for i, role := range cycle {
		switch role {
		case contractx.RoleCoordinator, contractx.RoleAnalyst, contractx.RoleResearcher:
		default:
			return fmt.Errorf("%w: unknown role %q in cycle", contractx.ErrFatal, role)
		}
		next := cycle[(i+1)%len(cycle)]
		if role == next {
			return fmt.Errorf("%w: role %q repeats consecutively in cycle", contractx.ErrFatal, role)
		}
		if role == executorRole {
			hasExecutor = true
		}
	}
	if !hasExecutor {
		return fmt.Errorf("%w: cycle has no tool-executing role", contractx.ErrFatal)
	}
	return nil
}

func (s *Session) ID() string {
	return s.id
}

// Messages returns a copy of the transcript so far.
func (s *Session) Messages() []contractx.Message {
	return s.transcript.Messages()
}

// NextRole reports who speaks next: the tool-executing role while a ToolCall
// is unanswered, otherwise the next role in the rotation.
func (s *Session) NextRole() contractx.Role {
	if _, pending := s.transcript.PendingToolCall(); pending {
		return executorRole
	}
	return s.cycle[s.cursor]
}

// Run drives turn rotation until the human terminates the session, the round
// budget is exhausted, or ctx is canceled. It always releases session
// resources on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	for round := 0; round < s.maxRounds; round++ {
		if s.closed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.step(ctx); err != nil {
			if errors.Is(err, contractx.ErrTerminated) {
				s.log.Info().Int("round", round).Msg("session terminated by user")
				return nil
			}
			return err
		}
	}
	s.log.Info().Int("rounds", s.maxRounds).Msg("round limit reached")
	return nil
}

// Close stops scheduling and releases session state. Safe to call twice.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
}

// Closed reports whether the session has been shut down.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) step(ctx context.Context) error {
	if call, pending := s.transcript.PendingToolCall(); pending {
		return s.executeTool(ctx, call)
	}

	role := s.cycle[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.cycle)
	agent := s.agents[role]

	if role == executorRole {
		return s.checkpoint(ctx, agent)
	}

	msg, err := agent.Reply(ctx, s.transcript.Messages())
	if err != nil {
		// Recoverable: the failure becomes ordinary transcript content.
		s.log.Warn().Err(err).Str("role", string(role)).Msg("agent reply failed")
		s.append(contractx.Message{
			Speaker: agent.Name(),
			Role:    role,
			Content: fmt.Sprintf("(%s is unavailable right now: %v)", role, err),
		})
		return nil
	}
	if msg.ToolCall != nil && role != contractx.RoleResearcher {
		// Only the researcher may request tools from this position.
		s.log.Warn().Str("role", string(role)).Str("tool", msg.ToolCall.Name).Msg("stripping unauthorized tool call")
		msg.ToolCall = nil
	}
	s.append(msg)
	return nil
}

// executeTool serializes tool execution: the tool-executing role answers the
// pending call before any other turn is produced. The human may veto the
// execution with the terminal token.
func (s *Session) executeTool(ctx context.Context, call *contractx.ToolCall) error {
	executor := s.agents[executorRole]
	if approver, ok := executor.(contractx.ToolApprover); ok {
		actx, cancel := context.WithTimeout(ctx, s.checkpointTimeout)
		err := approver.ApproveExecution(actx, *call)
		cancel()
		if errors.Is(err, contractx.ErrTerminated) {
			s.Close()
			return contractx.ErrTerminated
		}
	}

	result := s.gateway.Execute(ctx, *call)
	s.append(contractx.Message{
		Speaker:    executor.Name(),
		Role:       executorRole,
		ToolResult: &result,
	})
	// The result counts as the executor's turn in the rotation, so the
	// rotation resumes with the role after the executor.
	if s.cycle[s.cursor] == executorRole {
		s.cursor = (s.cursor + 1) % len(s.cycle)
	}
	return nil
}

// checkpoint solicits human input with a bounded wait. A timed-out or empty
// checkpoint yields at most one default auto-reply; consecutive timeouts do
// not accumulate duplicated fallback content.
func (s *Session) checkpoint(ctx context.Context, agent contractx.Agent) error {
	cctx, cancel := context.WithTimeout(ctx, s.checkpointTimeout)
	msg, err := agent.Reply(cctx, s.transcript.Messages())
	cancel()

	switch {
	case errors.Is(err, contractx.ErrTerminated):
		s.Close()
		return contractx.ErrTerminated
	case errors.Is(err, context.Canceled):
		// Shutdown, not a lapsed checkpoint. No fallback is owed.
		return err
	case errors.Is(err, contractx.ErrCheckpointTimeout):
		s.injectFallback(agent)
		return nil
	case err != nil:
		return fmt.Errorf("%w: checkpoint failed: %v", contractx.ErrFatal, err)
	}

	s.lastFellBack = false
	s.append(msg)
	return nil
}

func (s *Session) injectFallback(agent contractx.Agent) {
	if s.lastFellBack {
		s.log.Debug().Msg("suppressing duplicate checkpoint fallback")
		return
	}
	s.lastFellBack = true
	s.append(contractx.Message{
		Speaker: agent.Name(),
		Role:    executorRole,
		Content: s.defaultReply,
		Auto:    true,
	})
}

func (s *Session) append(msg contractx.Message) {
	s.transcript.Append(msg)
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}
