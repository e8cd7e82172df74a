// Package filetracker provides the default in-memory implementation of
// trans.FileStore: the file/pipe tracker collaborator the transaction
// reassembly engine reads and mutates via subcommand semantic handlers.
package filetracker

import (
	"sync"

	"github.com/flowguard/dce2smb/internal/logger"
	"github.com/flowguard/dce2smb/internal/smb1/trans"
)

type key struct{ uid, tid, fid uint16 }

// Store is a sync.RWMutex-guarded map keyed by (uid,tid,fid) and, for the
// response-path lookups that only have the server-allocated FID, by fid
// alone. Adapted from the teacher's rpc.PipeManager concurrency idiom (one
// registry lock, simple map of pointers) to this engine's keying scheme.
type Store struct {
	mu      sync.RWMutex
	byKey   map[key]*trans.FileEntry
	byFID   map[uint16]*trans.FileEntry
	ipcTIDs map[uint16]bool
}

// New creates an empty file/pipe tracker store.
func New() *Store {
	return &Store{
		byKey:   make(map[key]*trans.FileEntry),
		byFID:   make(map[uint16]*trans.FileEntry),
		ipcTIDs: make(map[uint16]bool),
	}
}

// Find looks up an entry by its full key.
func (s *Store) Find(uid, tid, fid uint16) (*trans.FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key{uid, tid, fid}]
	return e, ok
}

// Get looks up an entry by fid alone.
func (s *Store) Get(fid uint16) (*trans.FileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byFID[fid]
	return e, ok
}

// Create inserts entry, replacing any prior entry at the same key.
func (s *Store) Create(entry *trans.FileEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key{entry.UID, entry.TID, entry.FID}] = entry
	s.byFID[entry.FID] = entry
}

// RemoveTID drops every entry associated with tid and forgets that it was
// ever an IPC$ tree connection.
func (s *Store) RemoveTID(tid uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.byKey {
		if e.TID == tid {
			delete(s.byKey, k)
			delete(s.byFID, e.FID)
		}
	}
	delete(s.ipcTIDs, tid)
}

// AbortFileAPI cancels whatever in-flight "file API" tracker a session was
// previously favoring (spec scenario E5: a sequential-only NT_TRANSACT_CREATE
// preempts a non-sequential one). This store does not key entries by
// session, only by (uid,tid,fid), so there is no "current favored tracker
// for session X" to look up here — the preemption decision is made by the
// caller (handleNTCreateResponse) before this is invoked, and a subsequent
// Create for the new FID simply supersedes the old FileEntry at its key.
// This hook exists so a real deployment can wire session-scoped cleanup
// (e.g. a metrics counter, or releasing a handle held elsewhere) without
// changing the FileStore interface.
func (s *Store) AbortFileAPI(sessionID string) {
	logger.Debug("file API tracker preempted", "session", sessionID)
}

// IsIPCTID reports whether tid is a tree connection to IPC$.
func (s *Store) IsIPCTID(tid uint16) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ipcTIDs[tid]
}

// MarkIPCTID records tid as a tree connection to IPC$. Called by the outer
// SMB dispatcher when it observes a successful TreeConnect into that share
// — tree-connect tracking itself is out of this engine's scope (spec.md
// §1's external collaborator list), but something has to feed this store
// the fact once it is known.
func (s *Store) MarkIPCTID(tid uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipcTIDs[tid] = true
}
