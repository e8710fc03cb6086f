package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loopguard/loopguard/internal/model"
	"github.com/loopguard/loopguard/internal/signature"
)

// --- Input/Output types ---

// AdmitInput defines parameters for the loopguard_admit tool.
type AdmitInput struct {
	Job  string         `json:"job" jsonschema:"job identity the action belongs to"`
	Tool string         `json:"tool" jsonschema:"capability being invoked (fetch/shell/file_write)"`
	Args map[string]any `json:"args,omitempty" jsonschema:"effective arguments of the invocation"`
}

// AdmitOutput carries the decision and, for admitted actions, the step to
// report against.
type AdmitOutput struct {
	Allowed           bool   `json:"allowed"`
	Decision          string `json:"decision"`
	Reason            string `json:"reason,omitempty"`
	Detail            string `json:"detail,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
	Step              int64  `json:"step,omitempty"`
}

// ReportInput defines parameters for the loopguard_report tool.
type ReportInput struct {
	Job     string `json:"job" jsonschema:"job the admitted step belongs to"`
	Step    int64  `json:"step" jsonschema:"step returned by loopguard_admit"`
	Success bool   `json:"success" jsonschema:"whether the action succeeded"`
}

// ReportOutput confirms the outcome was recorded.
type ReportOutput struct {
	Recorded bool `json:"recorded"`
}

// CheckInput defines parameters for the loopguard_check tool.
type CheckInput struct {
	Job  string         `json:"job" jsonschema:"job identity the action belongs to"`
	Tool string         `json:"tool" jsonschema:"capability being invoked"`
	Args map[string]any `json:"args,omitempty" jsonschema:"effective arguments of the invocation"`
}

// CheckOutput contains the dry-run decision.
type CheckOutput struct {
	Allowed           bool   `json:"allowed"`
	Decision          string `json:"decision"`
	Reason            string `json:"reason,omitempty"`
	Detail            string `json:"detail,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// TerminalInput defines parameters for the loopguard_terminal tool.
type TerminalInput struct {
	Job   string `json:"job" jsonschema:"job to mark terminal"`
	State string `json:"state" jsonschema:"terminal state (completed/aborted)"`
}

// TerminalOutput confirms the terminal mark.
type TerminalOutput struct {
	Job   string `json:"job"`
	State string `json:"state"`
}

// StaleInput is empty; the scan uses the configured idle threshold.
type StaleInput struct{}

// StaleOutput lists currently stalled jobs.
type StaleOutput struct {
	Alerts []StaleItem `json:"alerts"`
}

// StaleItem describes one stalled job.
type StaleItem struct {
	Job         string `json:"job"`
	LastStep    int64  `json:"last_step"`
	IdleSeconds int64  `json:"idle_seconds"`
	LastSeen    string `json:"last_seen"`
}

// --- Handlers ---

func (s *Server) handleAdmit(ctx context.Context, req *mcpsdk.CallToolRequest, input AdmitInput) (*mcpsdk.CallToolResult, AdmitOutput, error) {
	sig, err := signature.Compute(input.Tool, input.Args)
	if err != nil {
		return nil, AdmitOutput{}, fmt.Errorf("compute signature: %w", err)
	}

	step, decision, err := s.runner.Admit(input.Job, sig, input.Tool)
	if err != nil {
		if _, ok := err.(*model.StorageError); ok {
			out := admitOutput(decision, 0)
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, AdmitOutput{}, err
	}

	out := admitOutput(decision, step)
	if !decision.Allowed() {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleReport(ctx context.Context, req *mcpsdk.CallToolRequest, input ReportInput) (*mcpsdk.CallToolResult, ReportOutput, error) {
	if err := s.runner.Report(input.Job, input.Step, input.Success); err != nil {
		return nil, ReportOutput{}, err
	}
	return nil, ReportOutput{Recorded: true}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	sig, err := signature.Compute(input.Tool, input.Args)
	if err != nil {
		return nil, CheckOutput{}, fmt.Errorf("compute signature: %w", err)
	}

	decision, err := s.runner.Check(input.Job, sig, input.Tool)
	if err != nil {
		return nil, CheckOutput{}, err
	}

	return nil, CheckOutput{
		Allowed:           decision.Allowed(),
		Decision:          string(decision.Effect),
		Reason:            string(decision.Reason),
		Detail:            decision.Detail,
		RetryAfterSeconds: retrySeconds(decision),
	}, nil
}

func (s *Server) handleTerminal(ctx context.Context, req *mcpsdk.CallToolRequest, input TerminalInput) (*mcpsdk.CallToolResult, TerminalOutput, error) {
	if err := s.runner.MarkTerminal(input.Job, model.TerminalState(input.State)); err != nil {
		return nil, TerminalOutput{}, err
	}
	return nil, TerminalOutput{Job: input.Job, State: input.State}, nil
}

func (s *Server) handleStale(ctx context.Context, req *mcpsdk.CallToolRequest, input StaleInput) (*mcpsdk.CallToolResult, StaleOutput, error) {
	alerts, err := s.watchdog.CheckStale(time.Now().UTC())
	if err != nil {
		return nil, StaleOutput{}, err
	}

	items := make([]StaleItem, len(alerts))
	for i, a := range alerts {
		items[i] = StaleItem{
			Job:         a.JobID,
			LastStep:    a.LastStep,
			IdleSeconds: a.IdleSeconds,
			LastSeen:    a.LastSeen.Format(time.RFC3339),
		}
	}
	return nil, StaleOutput{Alerts: items}, nil
}

// --- Helpers ---

func admitOutput(d model.Decision, step int64) AdmitOutput {
	return AdmitOutput{
		Allowed:           d.Allowed(),
		Decision:          string(d.Effect),
		Reason:            string(d.Reason),
		Detail:            d.Detail,
		RetryAfterSeconds: retrySeconds(d),
		Step:              step,
	}
}

func retrySeconds(d model.Decision) int64 {
	retry := d.RetryAfter(time.Now().UTC())
	if retry <= 0 {
		return 0
	}
	seconds := int64(retry / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
