package consent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

// RequestContext carries the information shown to the user alongside an
// approval prompt.
type RequestContext struct {
	// Reason explains why the package is wanted (from generation feedback).
	Reason string
	// UsedInFiles lists generated files that import the package.
	UsedInFiles []string
	// Alternative is the structured built-in substitute, if one is known.
	// When nil, the gate resolves it per package from Alternatives.
	Alternative *proto.AlternativeInfo
	// Alternatives maps package name to its built-in substitute, so a
	// batch prompt offers the right one for each package.
	Alternatives map[string]proto.AlternativeInfo
	// TaskID identifies the task requesting the install.
	TaskID string
}

// Prompter is the interactive surface asked for consent decisions. In
// non-interactive contexts it must return a rejection without blocking.
type Prompter interface {
	PromptConsent(ctx context.Context, pkg string, reqCtx RequestContext) (proto.ConsentResponse, error)
}

// Approval describes how a single package cleared the gate.
type Approval struct {
	Package string
	Scope   proto.ConsentScope
	// Source records where the approval came from: "project_store",
	// "session", or "prompt".
	Source string
}

// BatchResult is the outcome of a batch approval pass.
type BatchResult struct {
	// Approved packages are install-eligible.
	Approved []Approval
	// Alternatives maps package name to the built-in module that should be
	// used instead; these packages are never installed.
	Alternatives map[string]string
	// Rejected holds every package that was denied, plus every package
	// left unprocessed once the batch stopped at the first rejection.
	Rejected []string
}

// FullyApproved reports whether the batch cleared with no rejections and
// no substitutions.
func (r *BatchResult) FullyApproved() bool {
	return len(r.Rejected) == 0 && len(r.Alternatives) == 0
}

// Gate decides, per unknown package, whether installation is approved.
type Gate struct {
	store          *Store
	prompter       Prompter
	logger         *logx.Logger
	sessionSet     map[string]bool
	nonInteractive bool
	mu             sync.Mutex
}

// NewGate creates a consent gate over the given durable store and prompt
// surface. With nonInteractive set, every prompt is auto-rejected.
func NewGate(store *Store, prompter Prompter, nonInteractive bool) *Gate {
	return &Gate{
		store:          store,
		prompter:       prompter,
		logger:         logx.NewLogger("consent"),
		sessionSet:     make(map[string]bool),
		nonInteractive: nonInteractive,
	}
}

// ErrRejectedNonInteractive marks rejections caused purely by the
// non-interactive mode, so callers can surface the cause.
var ErrRejectedNonInteractive = fmt.Errorf("package rejected: running in non-interactive mode")

// CheckApproval resolves consent for a single package:
//  1. durable project approval wins silently (store failures degrade to
//     the next step rather than failing the call);
//  2. session approval wins silently;
//  3. otherwise the prompt surface decides. In non-interactive mode the
//     prompt is skipped and the package auto-rejected.
func (g *Gate) CheckApproval(ctx context.Context, pkg string, reqCtx RequestContext) (proto.ConsentResponse, *Approval, error) {
	if g.store != nil && g.store.IsApproved(pkg) {
		g.logger.Info("package %q approved (source: project store)", pkg)
		return proto.ConsentResponse{Kind: proto.ConsentApproveProject},
			&Approval{Package: pkg, Scope: proto.ScopeProject, Source: "project_store"}, nil
	}

	g.mu.Lock()
	inSession := g.sessionSet[pkg]
	g.mu.Unlock()
	if inSession {
		g.logger.Info("package %q approved (source: session)", pkg)
		return proto.ConsentResponse{Kind: proto.ConsentApproveSession},
			&Approval{Package: pkg, Scope: proto.ScopeSession, Source: "session"}, nil
	}

	if g.nonInteractive {
		g.logger.Info("package %q auto-rejected (non-interactive mode)", pkg)
		return proto.ConsentResponse{Kind: proto.ConsentReject, Reason: ErrRejectedNonInteractive.Error()}, nil, nil
	}

	// reqCtx is a value; selecting this package's alternative never
	// leaks into the other packages of a batch.
	if reqCtx.Alternative == nil {
		if alt, ok := reqCtx.Alternatives[pkg]; ok {
			altCopy := alt
			reqCtx.Alternative = &altCopy
		}
	}

	resp, err := g.prompter.PromptConsent(ctx, pkg, reqCtx)
	if err != nil {
		return proto.ConsentResponse{}, nil, fmt.Errorf("consent prompt failed for %q: %w", pkg, err)
	}

	switch resp.Kind {
	case proto.ConsentApproveOnce:
		return resp, &Approval{Package: pkg, Scope: proto.ScopeOnce, Source: "prompt"}, nil

	case proto.ConsentApproveSession:
		g.mu.Lock()
		g.sessionSet[pkg] = true
		g.mu.Unlock()
		return resp, &Approval{Package: pkg, Scope: proto.ScopeSession, Source: "prompt"}, nil

	case proto.ConsentApproveProject:
		decision := proto.ConsentDecision{
			Package:   pkg,
			Scope:     proto.ScopeProject,
			Timestamp: time.Now().UTC(),
			Reason:    resp.Reason,
		}
		if err := g.recordDecision(decision); err != nil {
			// Persistence failure degrades to session scope; the run
			// keeps moving.
			g.logger.Warn("failed to persist project approval for %q, degrading to session scope: %v", pkg, err)
			g.mu.Lock()
			g.sessionSet[pkg] = true
			g.mu.Unlock()
			return resp, &Approval{Package: pkg, Scope: proto.ScopeSession, Source: "prompt"}, nil
		}
		return resp, &Approval{Package: pkg, Scope: proto.ScopeProject, Source: "prompt"}, nil

	case proto.ConsentSubstitute:
		// Recorded as a substitution, never an approval; the package is
		// never installed.
		decision := proto.ConsentDecision{
			Package:   pkg,
			Scope:     proto.ScopeOnce,
			Timestamp: time.Now().UTC(),
			Reason:    fmt.Sprintf("substituted with built-in %s", resp.Alternative),
		}
		if err := g.recordDecision(decision); err != nil {
			g.logger.Warn("failed to record substitution for %q: %v", pkg, err)
		}
		return resp, nil, nil

	case proto.ConsentReject:
		return resp, nil, nil

	default:
		return proto.ConsentResponse{}, nil, fmt.Errorf("unknown consent response kind %q for %q", resp.Kind, pkg)
	}
}

// recordDecision writes a decision to the durable store. Every store use
// past the initial lookup goes through here so a gate without a store
// degrades instead of panicking.
func (g *Gate) recordDecision(decision proto.ConsentDecision) error {
	if g.store == nil {
		return fmt.Errorf("no durable consent store configured")
	}
	return g.store.RecordApproval(decision)
}

// CheckBatchApprovalWithAlternatives resolves consent for a package list in
// order and stops at the first rejection: remaining packages land in the
// Rejected bucket without being prompted. One rejection aborts the whole
// batch rather than partially installing.
func (g *Gate) CheckBatchApprovalWithAlternatives(ctx context.Context, packages []string, reqCtx RequestContext) (BatchResult, error) {
	result := BatchResult{Alternatives: make(map[string]string)}

	for i, pkg := range packages {
		resp, approval, err := g.CheckApproval(ctx, pkg, reqCtx)
		if err != nil {
			return result, err
		}

		switch {
		case approval != nil:
			result.Approved = append(result.Approved, *approval)

		case resp.Kind == proto.ConsentSubstitute:
			result.Alternatives[pkg] = resp.Alternative

		default: // rejection stops the batch
			result.Rejected = append(result.Rejected, packages[i:]...)
			g.logger.Info("batch approval stopped at %q; %d package(s) rejected without prompting", pkg, len(result.Rejected))
			return result, nil
		}
	}

	return result, nil
}

// SessionApproved reports whether pkg is in the in-memory session set.
func (g *Gate) SessionApproved(pkg string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionSet[pkg]
}

// ResetSession discards all in-memory session approvals. Called on
// external cancellation: session state never survives an interrupted run.
func (g *Gate) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionSet = make(map[string]bool)
}
