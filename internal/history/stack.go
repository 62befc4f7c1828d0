// Package history keeps a client's local undo/redo buffer of whole-canvas
// snapshots.
package history

// Stack holds committed canvas snapshots and the snapshots undone since the
// last commit. A snapshot is in at most one of the two stacks. Stack is not
// safe for concurrent use; callers serialize access.
type Stack struct {
	history [][]byte
	redo    [][]byte
}

// New returns an empty Stack.
func New() *Stack {
	return &Stack{}
}

// Push records a committed snapshot and discards the redo branch.
func (s *Stack) Push(snapshot []byte) {
	s.history = append(s.history, snapshot)
	s.redo = nil
}

// Undo moves the newest snapshot to the redo stack and returns the snapshot
// to restore: the new newest, or nil for a blank canvas. ok is false when
// there is nothing to undo.
func (s *Stack) Undo() (restore []byte, ok bool) {
	if len(s.history) == 0 {
		return nil, false
	}
	top := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.redo = append(s.redo, top)

	if len(s.history) == 0 {
		return nil, true
	}
	return s.history[len(s.history)-1], true
}

// Redo moves the newest undone snapshot back to history and returns it. ok
// is false when there is nothing to redo.
func (s *Stack) Redo() (restore []byte, ok bool) {
	if len(s.redo) == 0 {
		return nil, false
	}
	top := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.history = append(s.history, top)
	return top, true
}

// Clear empties both stacks.
func (s *Stack) Clear() {
	s.history = nil
	s.redo = nil
}

// Len returns the number of committed snapshots.
func (s *Stack) Len() int {
	return len(s.history)
}

// RedoLen returns the number of undone snapshots available to redo.
func (s *Stack) RedoLen() int {
	return len(s.redo)
}
