// Package e2e provides end-to-end test infrastructure for the turbowrap
// orchestration pipeline.
package e2e

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// ScriptEntry defines a single scripted backend response.
type ScriptEntry struct {
	Output string // response text (exactly one of Output/Err is set)
	Err    error  // return an error from Invoke

	// Test control
	BlockUntilCanceled bool            // block Invoke until ctx is canceled
	OnBlock            chan<- struct{} // notified when Invoke enters its blocking path
}

// ScriptedInvoker implements llm.Invoker with role-routed scripts plus a
// sequential fallback per backend. Role routing covers parallel reviewer
// fan-out where call order is non-deterministic; the per-backend fallback
// covers single-role flows like fixing and evaluation.
type ScriptedInvoker struct {
	mu              sync.Mutex
	routes          map[string][]ScriptEntry // role → per-role script
	routeIndex      map[string]int
	primary         []ScriptEntry // consumed in order for non-routed primary calls
	primaryIndex    int
	challenger      []ScriptEntry // consumed in order for non-routed challenger calls
	challengerIndex int
	capturedPrompts []string
}

// NewScriptedInvoker creates an empty scripted invoker.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddRouted adds an entry for a specific role.
func (s *ScriptedInvoker) AddRouted(role string, entry ScriptEntry) {
	s.routes[role] = append(s.routes[role], entry)
}

// AddPrimary adds a sequential entry for primary calls with no routed script.
func (s *ScriptedInvoker) AddPrimary(entry ScriptEntry) {
	s.primary = append(s.primary, entry)
}

// AddChallenger adds a sequential entry for challenger calls with no routed
// script.
func (s *ScriptedInvoker) AddChallenger(entry ScriptEntry) {
	s.challenger = append(s.challenger, entry)
}

// CapturedPrompts returns a copy of all prompts seen so far.
func (s *ScriptedInvoker) CapturedPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.capturedPrompts...)
}

// Invoke implements llm.Invoker.
func (s *ScriptedInvoker) Invoke(ctx context.Context, backend models.InvocationBackend, role, prompt string, _ llm.Options, _ llm.StreamSink) (*llm.Result, error) {
	s.mu.Lock()
	s.capturedPrompts = append(s.capturedPrompts, prompt)
	entry, err := s.next(backend, role)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if entry.BlockUntilCanceled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, llm.NewError(llm.ErrKindCanceled, ctx.Err())
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	return &llm.Result{Output: entry.Output, Duration: time.Millisecond}, nil
}

// next picks the routed entry for role if one exists, otherwise the next
// sequential entry for the backend. Caller holds the mutex.
func (s *ScriptedInvoker) next(backend models.InvocationBackend, role string) (ScriptEntry, error) {
	if script, ok := s.routes[role]; ok {
		idx := s.routeIndex[role]
		if idx >= len(script) {
			return ScriptEntry{}, fmt.Errorf("script exhausted for role %q (call %d)", role, idx+1)
		}
		s.routeIndex[role]++
		return script[idx], nil
	}

	if backend == models.BackendChallenger {
		if s.challengerIndex >= len(s.challenger) {
			return ScriptEntry{}, fmt.Errorf("challenger script exhausted (call %d)", s.challengerIndex+1)
		}
		entry := s.challenger[s.challengerIndex]
		s.challengerIndex++
		return entry, nil
	}

	if s.primaryIndex >= len(s.primary) {
		return ScriptEntry{}, fmt.Errorf("primary script exhausted for role %q (call %d)", role, s.primaryIndex+1)
	}
	entry := s.primary[s.primaryIndex]
	s.primaryIndex++
	return entry, nil
}

// Eval renders a challenger evaluation payload.
func Eval(score int, feedback string) string {
	return fmt.Sprintf(`{"satisfaction_score": %d, "feedback": %q}`, score, feedback)
}

// IssuesPayload renders a reviewer issues payload.
func IssuesPayload(issues ...string) string {
	out := `{"issues": [`
	for i, issue := range issues {
		if i > 0 {
			out += ","
		}
		out += issue
	}
	return out + `]}`
}

// Issue renders one reviewer issue object.
func Issue(file string, line int, severity, category, message string) string {
	return fmt.Sprintf(`{"file": %q, "start_line": %d, "severity": %q, "category": %q, "message": %q}`,
		file, line, severity, category, message)
}

// EditsPayload renders a fixer edits payload with one edit per path/content
// pair.
func EditsPayload(pathContent map[string]string) string {
	out := `{"edits": [`
	first := true
	for path, content := range pathContent {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf(`{"path": %q, "content": %q}`, path, content)
	}
	return out + `], "notes": "scripted fix"}`
}
