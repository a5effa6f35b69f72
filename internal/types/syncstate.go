package types

import "fmt"

// SyncState tracks the outcome of the most recent remote write of an entity.
// It is local only and never persisted.
//
//	clean   -> pending | synced (loaded from the store)
//	pending -> pending | synced | error
//	synced  -> pending
//	error   -> pending
//
// An entity in error only returns to pending through an explicit user action
// (an edit or a retry); nothing retries on its own.
type SyncState string

const (
	SyncClean   SyncState = "clean"
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

var syncTransitions = map[SyncState][]SyncState{
	SyncClean:   {SyncPending, SyncSynced},
	SyncPending: {SyncPending, SyncSynced, SyncError},
	SyncSynced:  {SyncPending},
	SyncError:   {SyncPending},
}

// CanTransition reports whether moving from s to next is allowed.
func (s SyncState) CanTransition(next SyncState) bool {
	for _, allowed := range syncTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError is returned for a sync state change the machine does not allow.
type TransitionError struct {
	From, To SyncState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid sync transition %s -> %s", e.From, e.To)
}

func transition(cur *SyncState, next SyncState) error {
	from := *cur
	if from == "" {
		from = SyncClean
	}
	if !from.CanTransition(next) {
		return &TransitionError{From: from, To: next}
	}
	*cur = next
	return nil
}
