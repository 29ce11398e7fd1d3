package rag

import (
	"sync"
	"testing"
)

func TestDocumentLockEntryRemovedAfterForget(t *testing.T) {
	o := &Orchestrator{docMu: make(map[int64]*sync.Mutex)}

	unlock := o.lockDocument(42)
	unlock()

	o.docMuGuard.Lock()
	entries := len(o.docMu)
	o.docMuGuard.Unlock()
	if entries != 1 {
		t.Fatalf("lock map has %d entries after lock, want 1", entries)
	}

	o.forgetDocument(42)

	o.docMuGuard.Lock()
	entries = len(o.docMu)
	o.docMuGuard.Unlock()
	if entries != 0 {
		t.Errorf("lock map has %d entries after forget, want 0", entries)
	}
}

func TestForgetDocumentUnknownIDIsNoOp(t *testing.T) {
	o := &Orchestrator{docMu: make(map[int64]*sync.Mutex)}

	unlock := o.lockDocument(1)
	unlock()
	o.forgetDocument(99)

	o.docMuGuard.Lock()
	defer o.docMuGuard.Unlock()
	if _, ok := o.docMu[1]; !ok {
		t.Error("unrelated lock entry was removed")
	}
}
