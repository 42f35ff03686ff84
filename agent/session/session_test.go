package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

type outcome struct {
	msg contractx.Message
	err error
}

type scriptedAgent struct {
	name   string
	role   contractx.Role
	script []outcome
	idx    int
}

func (a *scriptedAgent) Name() string         { return a.name }
func (a *scriptedAgent) Role() contractx.Role { return a.role }

func (a *scriptedAgent) Reply(ctx context.Context, transcript []contractx.Message) (contractx.Message, error) {
	if a.idx >= len(a.script) {
		return contractx.Message{Speaker: a.name, Role: a.role, Content: "nothing further"}, nil
	}
	out := a.script[a.idx]
	a.idx++
	return out.msg, out.err
}

type approvingCoordinator struct {
	scriptedAgent
	approvals    []error
	approveIdx   int
	approveCalls int
}

func (a *approvingCoordinator) ApproveExecution(ctx context.Context, call contractx.ToolCall) error {
	a.approveCalls++
	if a.approveIdx >= len(a.approvals) {
		return nil
	}
	err := a.approvals[a.approveIdx]
	a.approveIdx++
	return err
}

type fakeGateway struct {
	calls []contractx.ToolCall
}

func (g *fakeGateway) Execute(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	g.calls = append(g.calls, call)
	return contractx.ToolResult{CallID: call.ID, Name: call.Name, Content: "report"}
}

func say(name string, role contractx.Role, content string) outcome {
	return outcome{msg: contractx.Message{Speaker: name, Role: role, Content: content}}
}

func timeout() outcome {
	return outcome{err: contractx.ErrCheckpointTimeout}
}

func defaultAgents(coordinator contractx.Agent) []contractx.Agent {
	return []contractx.Agent{
		coordinator,
		&scriptedAgent{name: "analyst", role: contractx.RoleAnalyst},
		&scriptedAgent{name: "researcher", role: contractx.RoleResearcher},
	}
}

func TestNewRejectsInvalidRoleCycles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		roles []contractx.Role
	}{
		{"single role", []contractx.Role{contractx.RoleCoordinator}},
		{"adjacent repeat", []contractx.Role{contractx.RoleCoordinator, contractx.RoleCoordinator, contractx.RoleAnalyst}},
		{"wraparound repeat", []contractx.Role{contractx.RoleCoordinator, contractx.RoleAnalyst, contractx.RoleCoordinator}},
		{"no executor", []contractx.Role{contractx.RoleAnalyst, contractx.RoleResearcher}},
		{"unknown role", []contractx.Role{contractx.RoleCoordinator, contractx.Role("banker")}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{name: "coordinator", role: contractx.RoleCoordinator}}
			_, err := New(Config{Roles: tc.roles}, defaultAgents(coordinator), &fakeGateway{})
			if !errors.Is(err, contractx.ErrFatal) {
				t.Fatalf("New() error = %v, want ErrFatal", err)
			}
		})
	}
}

func TestNewRejectsMissingAgent(t *testing.T) {
	t.Parallel()

	agents := []contractx.Agent{
		&scriptedAgent{name: "analyst", role: contractx.RoleAnalyst},
		&scriptedAgent{name: "researcher", role: contractx.RoleResearcher},
	}
	_, err := New(Config{}, agents, &fakeGateway{})
	if !errors.Is(err, contractx.ErrFatal) {
		t.Fatalf("New() error = %v, want ErrFatal", err)
	}
}

func TestNextRolePrefersPendingToolCall(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{name: "coordinator", role: contractx.RoleCoordinator}}
	sess, err := New(Config{}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := sess.NextRole(); got != contractx.RoleCoordinator {
		t.Fatalf("initial NextRole() = %s", got)
	}

	sess.transcript.Append(contractx.Message{
		Speaker:  "researcher",
		Role:     contractx.RoleResearcher,
		ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis"},
	})
	if got := sess.NextRole(); got != contractx.RoleCoordinator {
		t.Fatalf("NextRole() with pending call = %s, want coordinator", got)
	}
}

func TestRunTerminatesOnExit(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{{err: contractx.ErrTerminated}},
	}}
	sess, err := New(Config{}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sess.Closed() {
		t.Fatal("session must be closed after termination")
	}
	if len(sess.Messages()) != 0 {
		t.Fatalf("transcript = %d messages, want 0", len(sess.Messages()))
	}
}

func TestRunSingleFallbackAcrossConsecutiveTimeouts(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{timeout(), timeout(), timeout()},
	}}
	sess, err := New(Config{MaxRounds: 9}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fallbacks := 0
	for _, msg := range sess.Messages() {
		if msg.Role == contractx.RoleCoordinator && msg.Content == defaultReplyText {
			fallbacks++
			if !msg.Auto {
				t.Fatal("fallback message must be marked as machine-injected")
			}
		}
	}
	if fallbacks != 1 {
		t.Fatalf("fallback messages = %d, want exactly 1", fallbacks)
	}
}

func TestRunCanceledCheckpointSkipsFallback(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{{err: context.Canceled}},
	}}
	sess, err := New(Config{MaxRounds: 9}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := sess.Run(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(sess.Messages()) != 0 {
		t.Fatalf("transcript = %d messages, want 0 after shutdown", len(sess.Messages()))
	}
}

func TestRunFallbackResetAfterHumanInput(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name: "coordinator",
		role: contractx.RoleCoordinator,
		script: []outcome{
			timeout(),
			say("coordinator", contractx.RoleCoordinator, "thanks, go on"),
			timeout(),
		},
	}}
	sess, err := New(Config{MaxRounds: 9}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fallbacks := 0
	humanTurns := 0
	for _, msg := range sess.Messages() {
		if msg.Role != contractx.RoleCoordinator {
			continue
		}
		switch msg.Content {
		case defaultReplyText:
			fallbacks++
		case "thanks, go on":
			humanTurns++
		}
	}
	if fallbacks != 2 {
		t.Fatalf("fallback messages = %d, want 2", fallbacks)
	}
	if humanTurns != 1 {
		t.Fatalf("human turns = %d, want 1", humanTurns)
	}
}

func TestRunExecutesPendingToolCallBeforeNextTurn(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{say("coordinator", contractx.RoleCoordinator, "analyze AAPL")},
	}}
	researcher := &scriptedAgent{
		name: "researcher",
		role: contractx.RoleResearcher,
		script: []outcome{{msg: contractx.Message{
			Speaker:  "researcher",
			Role:     contractx.RoleResearcher,
			Content:  "fetching data",
			ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis", Args: map[string]any{"ticker": "AAPL"}},
		}}},
	}
	gateway := &fakeGateway{}
	agents := []contractx.Agent{
		coordinator,
		&scriptedAgent{name: "analyst", role: contractx.RoleAnalyst},
		researcher,
	}
	sess, err := New(Config{MaxRounds: 4}, agents, gateway)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(gateway.calls) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gateway.calls))
	}
	msgs := sess.Messages()
	if len(msgs) != 4 {
		t.Fatalf("transcript = %d messages, want 4", len(msgs))
	}
	if msgs[2].ToolCall == nil {
		t.Fatal("researcher turn lost its tool call")
	}
	if msgs[3].ToolResult == nil || msgs[3].ToolResult.CallID != "c1" {
		t.Fatalf("tool result does not follow the call: %+v", msgs[3])
	}
	if msgs[3].Role != contractx.RoleCoordinator {
		t.Fatalf("tool result posted by %s, want coordinator", msgs[3].Role)
	}
	if coordinator.approveCalls != 1 {
		t.Fatalf("approve calls = %d, want 1", coordinator.approveCalls)
	}
}

func TestRunResumesRotationAfterToolResult(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{say("coordinator", contractx.RoleCoordinator, "analyze AAPL")},
	}}
	researcher := &scriptedAgent{
		name: "researcher",
		role: contractx.RoleResearcher,
		script: []outcome{{msg: contractx.Message{
			Speaker:  "researcher",
			Role:     contractx.RoleResearcher,
			Content:  "fetching data",
			ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis", Args: map[string]any{"ticker": "AAPL"}},
		}}},
	}
	agents := []contractx.Agent{
		coordinator,
		&scriptedAgent{name: "analyst", role: contractx.RoleAnalyst},
		researcher,
	}
	sess, err := New(Config{MaxRounds: 6}, agents, &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs := sess.Messages()
	wantRoles := []contractx.Role{
		contractx.RoleCoordinator,
		contractx.RoleAnalyst,
		contractx.RoleResearcher,
		contractx.RoleCoordinator,
		contractx.RoleAnalyst,
		contractx.RoleResearcher,
	}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("transcript = %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("turn %d spoken by %s, want %s", i, msgs[i].Role, want)
		}
	}
	if msgs[3].ToolResult == nil {
		t.Fatal("coordinator turn after the call must carry the tool result")
	}
	if msgs[4].ToolResult != nil || msgs[4].Role != contractx.RoleAnalyst {
		t.Fatalf("analyst must speak right after the result, got %+v", msgs[4])
	}
}

func TestRunVetoStopsSessionBeforeExecution(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{
		scriptedAgent: scriptedAgent{
			name:   "coordinator",
			role:   contractx.RoleCoordinator,
			script: []outcome{say("coordinator", contractx.RoleCoordinator, "analyze AAPL")},
		},
		approvals: []error{contractx.ErrTerminated},
	}
	researcher := &scriptedAgent{
		name: "researcher",
		role: contractx.RoleResearcher,
		script: []outcome{{msg: contractx.Message{
			Speaker:  "researcher",
			Role:     contractx.RoleResearcher,
			Content:  "fetching data",
			ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis", Args: map[string]any{"ticker": "AAPL"}},
		}}},
	}
	gateway := &fakeGateway{}
	agents := []contractx.Agent{
		coordinator,
		&scriptedAgent{name: "analyst", role: contractx.RoleAnalyst},
		researcher,
	}
	sess, err := New(Config{MaxRounds: 6}, agents, gateway)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(gateway.calls) != 0 {
		t.Fatalf("gateway calls = %d, want 0 after veto", len(gateway.calls))
	}
	if !sess.Closed() {
		t.Fatal("session must be closed after veto")
	}
	for _, msg := range sess.Messages() {
		if msg.ToolResult != nil {
			t.Fatal("vetoed call must not produce a result")
		}
	}
}

func TestRunAgentErrorBecomesTranscriptContent(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{say("coordinator", contractx.RoleCoordinator, "hello")},
	}}
	analyst := &scriptedAgent{
		name:   "analyst",
		role:   contractx.RoleAnalyst,
		script: []outcome{{err: errors.New("model overloaded")}},
	}
	agents := []contractx.Agent{
		coordinator,
		analyst,
		&scriptedAgent{name: "researcher", role: contractx.RoleResearcher},
	}
	sess, err := New(Config{MaxRounds: 3}, agents, &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	found := false
	for _, msg := range sess.Messages() {
		if msg.Role == contractx.RoleAnalyst && strings.Contains(msg.Content, "unavailable right now") {
			found = true
		}
	}
	if !found {
		t.Fatal("agent failure must appear as transcript content")
	}
}

func TestRunStripsToolCallFromAnalyst(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name:   "coordinator",
		role:   contractx.RoleCoordinator,
		script: []outcome{say("coordinator", contractx.RoleCoordinator, "hello")},
	}}
	analyst := &scriptedAgent{
		name: "analyst",
		role: contractx.RoleAnalyst,
		script: []outcome{{msg: contractx.Message{
			Speaker:  "analyst",
			Role:     contractx.RoleAnalyst,
			Content:  "let me look that up",
			ToolCall: &contractx.ToolCall{ID: "c9", Name: "get_financial_analysis"},
		}}},
	}
	gateway := &fakeGateway{}
	agents := []contractx.Agent{
		coordinator,
		analyst,
		&scriptedAgent{name: "researcher", role: contractx.RoleResearcher},
	}
	sess, err := New(Config{MaxRounds: 3}, agents, gateway)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(gateway.calls) != 0 {
		t.Fatalf("gateway calls = %d, want 0", len(gateway.calls))
	}
	for _, msg := range sess.Messages() {
		if msg.Role == contractx.RoleAnalyst && msg.ToolCall != nil {
			t.Fatal("analyst tool call must be stripped")
		}
	}
}

func TestRunRoundRobinOrder(t *testing.T) {
	t.Parallel()

	coordinator := &approvingCoordinator{scriptedAgent: scriptedAgent{
		name: "coordinator",
		role: contractx.RoleCoordinator,
		script: []outcome{
			say("coordinator", contractx.RoleCoordinator, "first"),
			say("coordinator", contractx.RoleCoordinator, "second"),
		},
	}}
	sess, err := New(Config{MaxRounds: 6}, defaultAgents(coordinator), &fakeGateway{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sess.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs := sess.Messages()
	wantRoles := []contractx.Role{
		contractx.RoleCoordinator,
		contractx.RoleAnalyst,
		contractx.RoleResearcher,
		contractx.RoleCoordinator,
		contractx.RoleAnalyst,
		contractx.RoleResearcher,
	}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("transcript = %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("turn %d spoken by %s, want %s", i, msgs[i].Role, want)
		}
	}
}
