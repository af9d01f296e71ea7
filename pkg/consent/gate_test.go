package consent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewright/pkg/proto"
)

// scriptedPrompter returns canned responses in order and records which
// packages were prompted and which alternative each prompt offered.
type scriptedPrompter struct {
	responses []proto.ConsentResponse
	prompted  []string
	offered   []string
}

func (p *scriptedPrompter) PromptConsent(_ context.Context, pkg string, reqCtx RequestContext) (proto.ConsentResponse, error) {
	p.prompted = append(p.prompted, pkg)
	if reqCtx.Alternative != nil {
		p.offered = append(p.offered, reqCtx.Alternative.Module)
	} else {
		p.offered = append(p.offered, "")
	}
	if len(p.responses) == 0 {
		return proto.ConsentResponse{Kind: proto.ConsentReject}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func TestCheckApproval_ProjectStoreWinsSilently(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, store.RecordApproval(proto.ConsentDecision{Package: "left-pad", Scope: proto.ScopeProject}))

	prompter := &scriptedPrompter{}
	gate := NewGate(store, prompter, false)

	_, approval, err := gate.CheckApproval(context.Background(), "left-pad", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, "project_store", approval.Source)
	assert.Empty(t, prompter.prompted, "project-approved package must not prompt")
}

func TestCheckApproval_PersistsAcrossStoreInstances(t *testing.T) {
	root := t.TempDir()

	gate := NewGate(NewStore(root), &scriptedPrompter{
		responses: []proto.ConsentResponse{{Kind: proto.ConsentApproveProject}},
	}, false)
	_, approval, err := gate.CheckApproval(context.Background(), "express", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, proto.ScopeProject, approval.Scope)

	// A fresh store and gate simulate a separate process run.
	prompter := &scriptedPrompter{}
	gate2 := NewGate(NewStore(root), prompter, false)
	_, approval2, err := gate2.CheckApproval(context.Background(), "express", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval2)
	assert.Equal(t, "project_store", approval2.Source)
	assert.Empty(t, prompter.prompted)
}

func TestCheckApproval_SessionScope(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{{Kind: proto.ConsentApproveSession}},
	}
	gate := NewGate(NewStore(root), prompter, false)

	_, approval, err := gate.CheckApproval(context.Background(), "lodash", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, proto.ScopeSession, approval.Scope)

	// Second call approves silently from the session set.
	_, approval2, err := gate.CheckApproval(context.Background(), "lodash", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval2)
	assert.Equal(t, "session", approval2.Source)
	assert.Len(t, prompter.prompted, 1)

	// Session approvals do not survive a reset.
	gate.ResetSession()
	assert.False(t, gate.SessionApproved("lodash"))
}

func TestCheckApproval_NonInteractiveAutoRejects(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{}
	gate := NewGate(NewStore(root), prompter, true)

	resp, approval, err := gate.CheckApproval(context.Background(), "axios", RequestContext{})
	require.NoError(t, err)
	assert.Nil(t, approval)
	assert.Equal(t, proto.ConsentReject, resp.Kind)
	assert.Contains(t, resp.Reason, "non-interactive")
	assert.Empty(t, prompter.prompted, "non-interactive mode must not prompt")
}

func TestCheckApproval_ProjectPersistFailureDegradesToSession(t *testing.T) {
	// Point the store under a regular file so directory creation fails.
	root := t.TempDir()
	blocked := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))

	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{{Kind: proto.ConsentApproveProject}},
	}
	gate := NewGate(NewStore(filepath.Join(blocked, "project")), prompter, false)

	_, approval, err := gate.CheckApproval(context.Background(), "chalk", RequestContext{})
	require.NoError(t, err, "persistence failure must not fail the call")
	require.NotNil(t, approval)
	assert.Equal(t, proto.ScopeSession, approval.Scope)
	assert.True(t, gate.SessionApproved("chalk"))
}

func TestBatchApproval_StopsAtFirstRejection(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{
			{Kind: proto.ConsentApproveOnce}, // a
			{Kind: proto.ConsentReject},      // b
		},
	}
	gate := NewGate(NewStore(root), prompter, false)

	result, err := gate.CheckBatchApprovalWithAlternatives(context.Background(), []string{"a", "b", "c"}, RequestContext{})
	require.NoError(t, err)

	require.Len(t, result.Approved, 1)
	assert.Equal(t, "a", result.Approved[0].Package)
	assert.Equal(t, []string{"b", "c"}, result.Rejected)
	assert.Equal(t, []string{"a", "b"}, prompter.prompted, "c must never be prompted")
	assert.False(t, result.FullyApproved())
}

func TestBatchApproval_Substitution(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{
			{Kind: proto.ConsentSubstitute, Alternative: "node:crypto"},
		},
	}
	gate := NewGate(NewStore(root), prompter, false)

	result, err := gate.CheckBatchApprovalWithAlternatives(context.Background(), []string{"uuid"}, RequestContext{})
	require.NoError(t, err)
	assert.Empty(t, result.Approved)
	assert.Empty(t, result.Rejected)
	assert.Equal(t, "node:crypto", result.Alternatives["uuid"])
	assert.False(t, result.FullyApproved(), "substitution requires a regeneration pass")

	// Substitution must not become a project approval.
	assert.False(t, NewStore(root).IsApproved("uuid"))
}

func TestBatchApproval_EachPackageOfferedItsOwnAlternative(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{
			{Kind: proto.ConsentSubstitute, Alternative: "fetch"},
			{Kind: proto.ConsentSubstitute, Alternative: "node:crypto"},
		},
	}
	gate := NewGate(NewStore(root), prompter, false)

	reqCtx := RequestContext{Alternatives: map[string]proto.AlternativeInfo{
		"axios": {Module: "fetch", Description: "global fetch API"},
		"uuid":  {Module: "node:crypto", Description: "crypto.randomUUID()"},
	}}
	result, err := gate.CheckBatchApprovalWithAlternatives(context.Background(), []string{"axios", "uuid"}, reqCtx)
	require.NoError(t, err)

	// Every prompt in the batch carries the substitute for its own
	// package, not a shared one.
	assert.Equal(t, []string{"fetch", "node:crypto"}, prompter.offered)
	assert.Equal(t, "fetch", result.Alternatives["axios"])
	assert.Equal(t, "node:crypto", result.Alternatives["uuid"])
	assert.Empty(t, result.Approved)
	assert.Empty(t, result.Rejected)
}

func TestBatchApproval_NoAlternativeKnownOffersNone(t *testing.T) {
	root := t.TempDir()
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{{Kind: proto.ConsentApproveOnce}},
	}
	gate := NewGate(NewStore(root), prompter, false)

	reqCtx := RequestContext{Alternatives: map[string]proto.AlternativeInfo{
		"axios": {Module: "fetch"},
	}}
	_, err := gate.CheckBatchApprovalWithAlternatives(context.Background(), []string{"some-obscure-pkg"}, reqCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{""}, prompter.offered)
}

func TestCheckApproval_NilStoreDegradesInsteadOfPanicking(t *testing.T) {
	prompter := &scriptedPrompter{
		responses: []proto.ConsentResponse{
			{Kind: proto.ConsentApproveProject},
			{Kind: proto.ConsentSubstitute, Alternative: "fetch"},
		},
	}
	gate := NewGate(nil, prompter, false)

	// A project approval without a durable store falls back to session
	// scope.
	_, approval, err := gate.CheckApproval(context.Background(), "express", RequestContext{})
	require.NoError(t, err)
	require.NotNil(t, approval)
	assert.Equal(t, proto.ScopeSession, approval.Scope)
	assert.True(t, gate.SessionApproved("express"))

	// A substitution without a store still reports the substitute.
	resp, approval2, err := gate.CheckApproval(context.Background(), "axios", RequestContext{})
	require.NoError(t, err)
	assert.Nil(t, approval2)
	assert.Equal(t, proto.ConsentSubstitute, resp.Kind)
	assert.Equal(t, "fetch", resp.Alternative)
}

func TestStore_DecisionLogBounded(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	for i := 0; i < proto.MaxConsentDecisions+20; i++ {
		err := store.RecordApproval(proto.ConsentDecision{
			Package: fmt.Sprintf("pkg-%d", i),
			Scope:   proto.ScopeProject,
		})
		require.NoError(t, err)
	}

	doc := store.Load()
	assert.Len(t, doc.Decisions, proto.MaxConsentDecisions)
	// Oldest entries are evicted first.
	assert.Equal(t, "pkg-20", doc.Decisions[0].Package)
}

func TestStore_ApprovedSetDeduplicated(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordApproval(proto.ConsentDecision{Package: "express", Scope: proto.ScopeProject}))
	}

	doc := store.Load()
	assert.Equal(t, []string{"express"}, doc.ApprovedPackages)
}

func TestStore_CorruptFileTreatedAsEmpty(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0644))

	doc := store.Load()
	assert.Empty(t, doc.ApprovedPackages)
	assert.False(t, store.IsApproved("anything"))

	// A later approval overwrites the corrupt document.
	require.NoError(t, store.RecordApproval(proto.ConsentDecision{Package: "ok", Scope: proto.ScopeProject}))
	assert.True(t, store.IsApproved("ok"))
}

func TestTerminalPrompter_Responses(t *testing.T) {
	cases := []struct {
		input string
		want  proto.ConsentResponseKind
	}{
		{"o\n", proto.ConsentApproveOnce},
		{"session\n", proto.ConsentApproveSession},
		{"p\n", proto.ConsentApproveProject},
		{"r\n", proto.ConsentReject},
		{"garbage\nonce\n", proto.ConsentApproveOnce},
	}

	for _, tc := range cases {
		var out strings.Builder
		prompter := NewTerminalPrompterWithIO(strings.NewReader(tc.input), &out)
		resp, err := prompter.PromptConsent(context.Background(), "demo", RequestContext{Reason: "test"})
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.Kind, "input %q", tc.input)
	}
}

func TestTerminalPrompter_AlternativeChoice(t *testing.T) {
	var out strings.Builder
	alt := &proto.AlternativeInfo{Module: "fetch", Description: "global fetch API"}
	prompter := NewTerminalPrompterWithIO(strings.NewReader("a\n"), &out)

	resp, err := prompter.PromptConsent(context.Background(), "axios", RequestContext{Alternative: alt})
	require.NoError(t, err)
	assert.Equal(t, proto.ConsentSubstitute, resp.Kind)
	assert.Equal(t, "fetch", resp.Alternative)
	assert.Contains(t, out.String(), "fetch")
}

func TestTerminalPrompter_CancelClosesOpenPrompt(t *testing.T) {
	// A pipe with no writer simulates a user who never answers.
	in, _ := io.Pipe()
	var out strings.Builder
	prompter := NewTerminalPrompterWithIO(in, &out)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := prompter.PromptConsent(ctx, "axios", RequestContext{})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not close after cancellation")
	}
}

func TestTerminalPrompter_ClosedInputRejects(t *testing.T) {
	var out strings.Builder
	prompter := NewTerminalPrompterWithIO(strings.NewReader(""), &out)
	resp, err := prompter.PromptConsent(context.Background(), "axios", RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, proto.ConsentReject, resp.Kind)
}
