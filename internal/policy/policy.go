// Package policy answers "is this operation/target allowed". It is a pure
// decision layer: no I/O, no mutable state after construction.
//
// The allowlist semantics differ per resource class and are deliberate:
// an empty repository allowlist is open (all repositories allowed), an empty
// project allowlist is closed (projects are high blast radius and need
// explicit opt-in), and an empty protected-branch pattern list falls back to
// the PR-only flag, conservatively treating every branch as protected when
// PR-only mode is on.
package policy

import (
	"path"
	"strconv"
	"strings"

	"github.com/ghgate/ghgate/internal/config"
)

// Decision is the result of one check. Reason is set only on denial and is
// safe to surface to callers and audit events.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Engine holds the compiled allowlists.
type Engine struct {
	operations     map[string]bool
	repositories   map[string]bool
	projects       map[string]bool
	branchPatterns []string
	prOnly         bool
}

// NewEngine compiles the configured policy. operations is the fixed set of
// tool names registered at startup.
func NewEngine(cfg config.PolicyConfig, operations []string) *Engine {
	e := &Engine{
		operations:     make(map[string]bool, len(operations)),
		repositories:   make(map[string]bool, len(cfg.AllowedRepositories)),
		projects:       make(map[string]bool, len(cfg.AllowedProjects)),
		branchPatterns: append([]string(nil), cfg.ProtectedBranchPatterns...),
		prOnly:         cfg.PROnly,
	}
	for _, op := range operations {
		e.operations[op] = true
	}
	for _, repo := range cfg.AllowedRepositories {
		e.repositories[strings.TrimSpace(repo)] = true
	}
	for _, proj := range cfg.AllowedProjects {
		e.projects[strings.ToLower(strings.TrimSpace(proj))] = true
	}
	return e
}

// IsOperationAllowed accepts only names in the compiled-in operation set.
func (e *Engine) IsOperationAllowed(name string) Decision {
	if !e.operations[name] {
		return deny("operation " + strconv.Quote(name) + " is not in the operation allowlist")
	}
	return allow()
}

// IsRepositoryAllowed is open by default: an empty allowlist admits every
// repository.
func (e *Engine) IsRepositoryAllowed(ownerRepo string) Decision {
	if len(e.repositories) == 0 {
		return allow()
	}
	if !e.repositories[ownerRepo] {
		return deny("repository " + strconv.Quote(ownerRepo) + " is not in the repository allowlist")
	}
	return allow()
}

// IsProjectAllowed is closed by default: an empty allowlist denies every
// project. The owner is lower-cased before the membership test.
func (e *Engine) IsProjectAllowed(owner string, number int) Decision {
	if len(e.projects) == 0 {
		return deny("project operations are disabled: the project allowlist is empty")
	}
	key := strings.ToLower(owner) + "/" + strconv.Itoa(number)
	if !e.projects[key] {
		return deny("project " + strconv.Quote(key) + " is not in the project allowlist")
	}
	return allow()
}

// IsBranchProtected reports whether branch matches any configured glob
// pattern. With no patterns configured, PR-only mode treats every branch as
// protected: absence of information is never read as "unprotected".
func (e *Engine) IsBranchProtected(branch string) bool {
	if len(e.branchPatterns) == 0 {
		return e.prOnly
	}
	for _, pattern := range e.branchPatterns {
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}
