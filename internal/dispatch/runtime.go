package dispatch

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/ghgate/ghgate/internal/audit"
	"github.com/ghgate/ghgate/internal/auth"
	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/policy"
	"github.com/ghgate/ghgate/internal/transport"
)

// Runtime is the composition root shared by every in-flight tool call: the
// token cache, transport, policy engine, and audit sink are built once and
// reused, never re-initialized per request.
type Runtime struct {
	Config  *config.Config
	Policy  *policy.Engine
	Tokens  *auth.Provider
	REST    transport.REST
	GraphQL transport.GraphQL
	Audit   *audit.Logger
	Logger  *slog.Logger
}

func buildRuntime(cfg *config.Config, reg *Registry, logger *slog.Logger, control io.Writer, httpClient *http.Client) (*Runtime, error) {
	var authOpts []auth.Option
	var transportOpts []transport.Option
	if httpClient != nil {
		authOpts = append(authOpts, auth.WithHTTPClient(httpClient))
		transportOpts = append(transportOpts, transport.WithHTTPClient(httpClient))
	}

	tokens, err := auth.NewProvider(cfg.App, authOpts...)
	if err != nil {
		return nil, err
	}
	client, err := transport.New(tokens, cfg.Limits, "", transportOpts...)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:  cfg,
		Policy:  policy.NewEngine(cfg.Policy, reg.Names()),
		Tokens:  tokens,
		REST:    client,
		GraphQL: client,
		Audit:   audit.New(cfg.Audit.Path, cfg.Audit.MaxBytes, cfg.Audit.MaxBackups, control),
		Logger:  logger,
	}, nil
}
