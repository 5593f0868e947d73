// Package dispatch sequences one tool call through validation, secret
// scanning, authorization, execution, and auditing, and produces the uniform
// response envelope. Every dispatch writes exactly one audit event before its
// response becomes observable, whatever the outcome.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/ghgate/ghgate/internal/audit"
	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/safe"
	"github.com/ghgate/ghgate/internal/telemetry"
)

// Dispatcher owns the lazily-built, process-cached Runtime and the registered
// tool table.
type Dispatcher struct {
	cfg        *config.Config
	reg        *Registry
	logger     *slog.Logger
	control    io.Writer
	httpClient *http.Client

	mu sync.Mutex
	rt *Runtime
}

// DispatcherOption adjusts a Dispatcher at construction.
type DispatcherOption func(*Dispatcher)

// WithControlStream redirects the audit control stream (default stderr).
func WithControlStream(w io.Writer) DispatcherOption {
	return func(d *Dispatcher) { d.control = w }
}

// WithHTTPClient injects the HTTP client used by both the token provider and
// the transport. Tests use it to point the pipeline at a local server.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = c }
}

func New(cfg *config.Config, reg *Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		reg:     reg,
		logger:  logger,
		control: os.Stderr,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// runtime returns the shared Runtime, building it on first use. A build
// failure is not cached; the next dispatch retries.
func (d *Dispatcher) runtime() (*Runtime, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rt != nil {
		return d.rt, nil
	}
	rt, err := buildRuntime(d.cfg, d.reg, d.logger, d.control, d.httpClient)
	if err != nil {
		return nil, err
	}
	d.rt = rt
	return rt, nil
}

// Dispatch runs one tool call end to end and returns the response envelope.
// The envelope always carries a correlation id, success or failure.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	correlationID := uuid.NewString()
	repo := repositoryTarget(args)

	rt, err := d.runtime()
	if err != nil {
		se := safe.From(err)
		// The runtime itself could not be built; a standalone logger keeps
		// the exactly-one-event guarantee.
		audit.NewStandalone(d.control).WriteEvent(audit.Event{
			CorrelationID: correlationID,
			Operation:     name,
			Outcome:       audit.OutcomeFailed,
			Reason:        se.Code + ": " + se.Message,
			Repository:    repo,
		})
		telemetry.IncToolOutcome(name, audit.OutcomeFailed)
		d.logger.Error("runtime construction failed", "correlation_id", correlationID, "tool_name", name, "code", se.Code)
		return failureEnvelope(correlationID, se)
	}

	result, durationMS, outcome, se := d.attempt(ctx, rt, name, args)

	event := audit.Event{
		CorrelationID: correlationID,
		DurationMS:    durationMS,
		Operation:     name,
		Outcome:       outcome,
		Repository:    repo,
	}
	if se != nil {
		event.Reason = se.Code + ": " + se.Message
	}
	rt.Audit.WriteEvent(event)
	telemetry.IncToolOutcome(name, outcome)

	if se != nil {
		rt.Logger.Warn("tool call rejected or failed",
			"correlation_id", correlationID,
			"tool_name", name,
			"repo", repo,
			"outcome", outcome,
			"code", se.Code,
		)
		return failureEnvelope(correlationID, se)
	}

	rt.Logger.Info("tool call completed",
		"correlation_id", correlationID,
		"tool_name", name,
		"repo", repo,
		"outcome", outcome,
	)
	return successEnvelope(correlationID, result)
}

// attempt walks the per-call state machine up to the terminal outcome:
// validated → secret-checked → authorized → executing. Rejections before
// execution are denials; execution errors are failures.
func (d *Dispatcher) attempt(ctx context.Context, rt *Runtime, name string, args map[string]any) (map[string]any, *int64, string, *safe.Error) {
	spec, ok := d.reg.Lookup(name)
	if !ok {
		return nil, nil, audit.OutcomeDenied, safe.UserInput("unknown tool %q", name)
	}

	if err := d.reg.Validate(name, args); err != nil {
		return nil, nil, audit.OutcomeDenied, safe.From(err)
	}

	if path, found := findSecret(args); found {
		return nil, nil, audit.OutcomeDenied, safe.UserInput("argument %q appears to contain a credential-shaped value; remove it and retry", path)
	}

	if se := d.authorize(rt, spec, name, args); se != nil {
		return nil, nil, audit.OutcomeDenied, se
	}

	start := audit.MeasureStart()
	result, err := spec.Handler(ctx, rt, args)
	ms := audit.MeasureDuration(start)
	if err != nil {
		return nil, &ms, audit.OutcomeFailed, safe.From(err)
	}
	return result, &ms, audit.OutcomeSucceeded, nil
}

// authorize applies the ordered policy checks; the first failing check wins.
func (d *Dispatcher) authorize(rt *Runtime, spec *ToolSpec, name string, args map[string]any) *safe.Error {
	if dec := rt.Policy.IsOperationAllowed(name); !dec.Allowed {
		return safe.Forbidden("%s", dec.Reason)
	}
	if spec.RequiresRepo {
		if dec := rt.Policy.IsRepositoryAllowed(repositoryTarget(args)); !dec.Allowed {
			return safe.Forbidden("%s", dec.Reason)
		}
	}
	if spec.Project {
		owner, _ := args["owner"].(string)
		number := intArg(args, "project_number")
		if dec := rt.Policy.IsProjectAllowed(owner, number); !dec.Allowed {
			return safe.Forbidden("%s", dec.Reason)
		}
	}
	if spec.BranchParam != "" {
		branch, _ := args[spec.BranchParam].(string)
		if rt.Policy.IsBranchProtected(branch) {
			return safe.Forbidden("branch %q is protected; direct writes are not allowed", branch)
		}
	}
	return nil
}

// repositoryTarget extracts owner/repo for policy and audit purposes, or the
// unknown marker when the call has no repository target. A credential-shaped
// owner or repo is masked: the target string ends up in every audit sink, so
// it must never carry a pasted token.
func repositoryTarget(args map[string]any) string {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	if owner == "" || repo == "" {
		return audit.UnknownRepository
	}
	if looksLikeCredential(owner) || looksLikeCredential(repo) {
		return audit.UnknownRepository
	}
	return owner + "/" + repo
}

// intArg coerces a JSON number or numeric string argument.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func successEnvelope(correlationID string, result map[string]any) map[string]any {
	envelope := map[string]any{
		"ok":             true,
		"correlation_id": correlationID,
	}
	for k, v := range result {
		if k == "ok" || k == "correlation_id" {
			continue
		}
		envelope[k] = v
	}
	return envelope
}

func failureEnvelope(correlationID string, se *safe.Error) map[string]any {
	envelope := map[string]any{
		"ok":             false,
		"code":           se.Code,
		"message":        se.Message,
		"correlation_id": correlationID,
	}
	if se.Hint != "" {
		envelope["hint"] = se.Hint
	}
	return envelope
}
