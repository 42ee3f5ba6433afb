package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/aretw0/callflow/pkg/runner"
	"github.com/aretw0/callflow/pkg/session"
)

// ScriptURI is the resource exposing the stage script.
const ScriptURI = "callflow://script"

// Engine is the part of callflow.Engine a model collaborator can query.
type Engine interface {
	Classify(text string, topic domain.Waypoint) domain.Signals
	NextState(current domain.Waypoint, utterance string) flow.Transition
	InstructionFor(w domain.Waypoint) flow.Instruction
	Script() orchestrator.Script
}

// ClassifyResult is the output of classify_utterance.
type ClassifyResult struct {
	Signals   domain.Signals `json:"signals" jsonschema_description:"All flags derived from the utterance"`
	Effective domain.Signal  `json:"effective" jsonschema_description:"The winning signal after precedence"`
}

// NextStateResult is the output of next_state.
type NextStateResult struct {
	Transition  flow.Transition `json:"transition" jsonschema_description:"The transition taken for the utterance"`
	Instruction string          `json:"instruction" jsonschema_description:"Instruction payload of the resulting state"`
}

// InstructionResult is the output of instruction_for.
type InstructionResult struct {
	Waypoint domain.Waypoint `json:"waypoint" jsonschema_description:"The resolved waypoint, done when unknown"`
	Text     string          `json:"text" jsonschema_description:"Guidance followed by the tagged lines"`
}

// StageStatus is the output of complete_stage and active_stage.
type StageStatus struct {
	CallID string         `json:"call_id"`
	Active bool           `json:"active" jsonschema_description:"Whether a stage is waiting for completion"`
	Group  string         `json:"group,omitempty"`
	Stage  domain.StageID `json:"stage,omitempty"`
	// Instruction tells the model what the active stage needs.
	Instruction string `json:"instruction,omitempty"`
}

type classifyArgs struct {
	Text  string `json:"text"`
	Topic string `json:"topic"`
}

type nextStateArgs struct {
	State     string `json:"state"`
	Utterance string `json:"utterance"`
}

type instructionArgs struct {
	State string `json:"state"`
}

type completeArgs struct {
	CallID string         `json:"call_id"`
	Stage  string         `json:"stage"`
	Result map[string]any `json:"result"`
}

type activeArgs struct {
	CallID string `json:"call_id"`
}

// Server exposes the flow questions and the completion trigger as MCP tools.
type Server struct {
	engine    Engine
	directory *session.Directory
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server. Live calls are looked up in directory;
// a nil directory disables the stage tools.
func NewServer(engine Engine, directory *session.Directory, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		directory: directory,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("callflow-mcp", strings.TrimSpace(callflow.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSEHandlers returns the stream and message endpoints of an SSE transport.
// baseURL is the public address clients use to post messages back.
func (s *Server) SSEHandlers(baseURL string) (sse http.Handler, message http.Handler) {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	return sseServer.SSEHandler(), sseServer.MessageHandler()
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("classify_utterance",
		mcp.WithDescription("Derive the signals (busy, clarification, objection, question, answer) of a caller utterance."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The caller utterance")),
		mcp.WithString("topic", mcp.Description("Waypoint whose answer rule applies (optional)")),
		mcp.WithOutputSchema[ClassifyResult](),
	), mcp.NewStructuredToolHandler(s.handleClassify))

	s.mcpServer.AddTool(mcp.NewTool("next_state",
		mcp.WithDescription("Compute the waypoint that follows the current one for a caller utterance."),
		mcp.WithString("state", mcp.Required(), mcp.Description("Current waypoint")),
		mcp.WithString("utterance", mcp.Required(), mcp.Description("The caller utterance")),
		mcp.WithOutputSchema[NextStateResult](),
	), mcp.NewStructuredToolHandler(s.handleNextState))

	s.mcpServer.AddTool(mcp.NewTool("instruction_for",
		mcp.WithDescription("Get the instruction payload of a waypoint. Unknown waypoints get the terminal instruction."),
		mcp.WithString("state", mcp.Required(), mcp.Description("Waypoint name")),
		mcp.WithOutputSchema[InstructionResult](),
	), mcp.NewStructuredToolHandler(s.handleInstruction))

	if s.directory == nil {
		return
	}

	s.mcpServer.AddTool(mcp.NewTool("complete_stage",
		mcp.WithDescription("Record the structured result of the active stage of a live call. "+
			"Call it once, when the stage's question has been answered."),
		mcp.WithString("call_id", mcp.Required(), mcp.Description("Live call id")),
		mcp.WithString("stage", mcp.Required(), mcp.Description("Stage id, e.g. "+s.stageList())),
		mcp.WithObject("result", mcp.Description("Stage result fields")),
		mcp.WithOutputSchema[StageStatus](),
	), mcp.NewStructuredToolHandler(s.handleComplete))

	s.mcpServer.AddTool(mcp.NewTool("active_stage",
		mcp.WithDescription("Get the stage of a live call that is waiting for completion."),
		mcp.WithString("call_id", mcp.Required(), mcp.Description("Live call id")),
		mcp.WithOutputSchema[StageStatus](),
	), mcp.NewStructuredToolHandler(s.handleActive))
}

func (s *Server) stageList() string {
	var ids []string
	for _, g := range s.engine.Script().Groups {
		for _, st := range g.Stages {
			ids = append(ids, string(st.ID))
		}
	}
	return strings.Join(ids, ", ")
}

func (s *Server) handleClassify(_ context.Context, _ mcp.CallToolRequest, args classifyArgs) (ClassifyResult, error) {
	text, err := runner.SanitizeInput(args.Text)
	if err != nil {
		s.logger.Warn("MCP classify: input rejected", "err", err, "size", len(args.Text))
		return ClassifyResult{}, fmt.Errorf("input rejected: %w", err)
	}
	var topic domain.Waypoint
	if args.Topic != "" {
		if topic, err = domain.ParseWaypoint(args.Topic); err != nil {
			return ClassifyResult{}, err
		}
	}
	sig := s.engine.Classify(text, topic)
	return ClassifyResult{Signals: sig, Effective: sig.Effective()}, nil
}

func (s *Server) handleNextState(_ context.Context, _ mcp.CallToolRequest, args nextStateArgs) (NextStateResult, error) {
	current, err := domain.ParseWaypoint(args.State)
	if err != nil {
		return NextStateResult{}, err
	}
	text, err := runner.SanitizeInput(args.Utterance)
	if err != nil {
		s.logger.Warn("MCP next_state: input rejected", "err", err, "size", len(args.Utterance))
		return NextStateResult{}, fmt.Errorf("input rejected: %w", err)
	}
	tr := s.engine.NextState(current, text)
	return NextStateResult{Transition: tr, Instruction: s.engine.InstructionFor(tr.To).String()}, nil
}

func (s *Server) handleInstruction(_ context.Context, _ mcp.CallToolRequest, args instructionArgs) (InstructionResult, error) {
	wp, err := domain.ParseWaypoint(args.State)
	if err != nil {
		s.logger.Warn("MCP instruction_for: unknown waypoint", "waypoint", args.State)
		wp = domain.WaypointDone
	}
	ins := s.engine.InstructionFor(wp)
	return InstructionResult{Waypoint: ins.Waypoint, Text: ins.String()}, nil
}

func (s *Server) handleComplete(ctx context.Context, _ mcp.CallToolRequest, args completeArgs) (StageStatus, error) {
	l, err := s.live(args.CallID)
	if err != nil {
		return StageStatus{}, err
	}
	stage := domain.StageID(args.Stage)
	if err := l.Complete(ctx, stage, args.Result); err != nil {
		return StageStatus{}, fmt.Errorf("complete %s: %w", stage, err)
	}
	return stageStatus(l), nil
}

func (s *Server) handleActive(_ context.Context, _ mcp.CallToolRequest, args activeArgs) (StageStatus, error) {
	l, err := s.live(args.CallID)
	if err != nil {
		return StageStatus{}, err
	}
	return stageStatus(l), nil
}

func (s *Server) live(id string) (*session.Live, error) {
	l, ok := s.directory.Get(id)
	if !ok {
		return nil, fmt.Errorf("no live call %q", id)
	}
	return l, nil
}

func stageStatus(l *session.Live) StageStatus {
	group, spec, ok := l.Active()
	return StageStatus{
		CallID:      l.ID,
		Active:      ok,
		Group:       group,
		Stage:       spec.ID,
		Instruction: spec.Instruction,
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ScriptURI, "Stage script",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(s.engine.Script())
		if err != nil {
			return nil, fmt.Errorf("failed to encode script: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ScriptURI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	})
}
