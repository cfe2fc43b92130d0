package approval

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	status int
	perm   int
}

func (s *recordingSink) EmitStatusUpdate(bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status++
}

func (s *recordingSink) EmitPermissionRequired(Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perm++
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.perm
}

func newTestTrustStore(t *testing.T) *FileTrustStore {
	t.Helper()
	dir := t.TempDir()
	store, err := LoadFileTrustStore(filepath.Join(dir, "trust.json"))
	require.NoError(t, err)
	return store
}

func TestTrustedAutoApprovalSkipsUI(t *testing.T) {
	trust := newTestTrustStore(t)
	require.NoError(t, trust.Trust("wf-hash-1", "execute_command:rm file.txt"))
	sink := &recordingSink{}
	c := New(trust, sink, core.NoOpLogger{})

	req := Request{
		ActionID:        "act-1",
		ToolName:        "execute_command",
		Title:           "rm file",
		WorkflowHash:    "wf-hash-1",
		ActionSignature: "execute_command:rm file.txt",
	}

	var out Outcome
	var err error
	done := make(chan struct{})
	go func() {
		out, err = c.RequestApproval(context.Background(), req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestApproval did not return immediately for an already-trusted action")
	}
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, out.Decision.Kind)
	assert.False(t, out.Decision.Trust)

	statusN, permN := sink.counts()
	assert.Equal(t, 0, statusN)
	assert.Equal(t, 0, permN)
}

func TestApprovalTrustMemoizationSecondCallSkipsUI(t *testing.T) {
	trust := newTestTrustStore(t)
	sink := &recordingSink{}
	c := New(trust, sink, core.NoOpLogger{})

	req := Request{
		ActionID:        "act-1",
		ToolName:        "execute_command",
		Title:           "rm file",
		WorkflowHash:    "wf-hash-1",
		ActionSignature: "execute_command:rm file.txt",
	}

	resultCh := make(chan Outcome, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := c.RequestApproval(context.Background(), req)
		resultCh <- out
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Resolve("act-1", Decision{Kind: DecisionApproved, Trust: true}))

	out1 := <-resultCh
	require.NoError(t, <-errCh)
	assert.Equal(t, DecisionApproved, out1.Decision.Kind)
	assert.True(t, out1.Decision.Trust)

	statusN1, permN1 := sink.counts()
	assert.Equal(t, 1, statusN1)
	assert.Equal(t, 1, permN1)

	req2 := Request{
		ActionID:        "act-2",
		ToolName:        "execute_command",
		Title:           "rm file again",
		WorkflowHash:    "wf-hash-1",
		ActionSignature: "execute_command:rm file.txt",
	}
	out2, err := c.RequestApproval(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, out2.Decision.Kind)
	assert.False(t, out2.Decision.Trust)

	statusN2, permN2 := sink.counts()
	assert.Equal(t, statusN1, statusN2)
	assert.Equal(t, permN1, permN2)
}

func TestApprovalRejectionLeavesTrustUntouched(t *testing.T) {
	trust := newTestTrustStore(t)
	sink := &recordingSink{}
	c := New(trust, sink, core.NoOpLogger{})

	req := Request{
		ActionID:        "act-1",
		ToolName:        "execute_command",
		WorkflowHash:    "wf-hash-1",
		ActionSignature: "execute_command:rm file.txt",
	}

	resultCh := make(chan Outcome, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := c.RequestApproval(context.Background(), req)
		resultCh <- out
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Resolve("act-1", Decision{Kind: DecisionRejected, Reason: "not now"}))

	out := <-resultCh
	require.NoError(t, <-errCh)
	assert.Equal(t, DecisionRejected, out.Decision.Kind)
	assert.False(t, trust.IsTrusted("wf-hash-1", "execute_command:rm file.txt"))
}

func TestApprovalResolveUnknownActionIDErrors(t *testing.T) {
	trust := newTestTrustStore(t)
	c := New(trust, &recordingSink{}, core.NoOpLogger{})
	err := c.Resolve("missing", Decision{Kind: DecisionApproved})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotPending)
}

func TestApprovalChannelDroppedSurfacesOnDrop(t *testing.T) {
	trust := newTestTrustStore(t)
	c := New(trust, &recordingSink{}, core.NoOpLogger{})

	req := Request{ActionID: "act-1", ToolName: "execute_command", WorkflowHash: "wf-2", ActionSignature: "sig"}
	errCh := make(chan error, 1)
	go func() {
		_, err := c.RequestApproval(context.Background(), req)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Drop("act-1"))

	err := <-errCh
	require.Error(t, err)
	var dropped *core.ApprovalChannelDroppedError
	assert.ErrorAs(t, err, &dropped)
}

func TestApprovalDuplicateActionIDRejected(t *testing.T) {
	trust := newTestTrustStore(t)
	c := New(trust, &recordingSink{}, core.NoOpLogger{})

	req := Request{ActionID: "dup-1", ToolName: "execute_command", WorkflowHash: "wf-3", ActionSignature: "sig"}
	go c.RequestApproval(context.Background(), req)
	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.RequestApproval(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateActionID)

	_ = c.Drop("dup-1")
}

func TestTrustStorePersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.json")
	store, err := LoadFileTrustStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Trust("wf-a", "sig-a"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	reloaded, err := LoadFileTrustStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsTrusted("wf-a", "sig-a"))
}
