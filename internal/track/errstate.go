package track

import "fmt"

// ErrKind classifies an expected resolution failure.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrEmptyPath
	ErrInvalidPath
	ErrNoRootFolder
	ErrNoCandidateFound
	ErrPeerUnreachable
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrEmptyPath:
		return "empty_path"
	case ErrInvalidPath:
		return "invalid_path"
	case ErrNoRootFolder:
		return "no_root_folder"
	case ErrNoCandidateFound:
		return "no_candidate_found"
	case ErrPeerUnreachable:
		return "peer_unreachable"
	default:
		return "unknown"
	}
}

// ResolveError is an expected failure from source resolution. It carries the
// kind plus the condition key the failure is tied to, so repeated failures
// under the same condition can be suppressed.
type ResolveError struct {
	Kind      ErrKind
	Condition string
	Message   string
}

func (e *ResolveError) Error() string {
	return e.Message
}

func resolveErr(kind ErrKind, condition, format string, args ...any) *ResolveError {
	return &ResolveError{
		Kind:      kind,
		Condition: condition,
		Message:   fmt.Sprintf(format, args...),
	}
}

// ErrorState suppresses duplicate failure notifications. Resolution is
// retried every tick, so a persistent failure would otherwise re-fire
// every tick.
//
// Not goroutine-safe: owned by the tracker and mutated on the tick path only.
type ErrorState struct {
	active    bool
	kind      ErrKind
	condition string
	message   string
}

// Report records a failure and reports whether it is new. A failure is new
// exactly once per distinct (kind, condition) pair until Clear is called or
// a different failure supersedes it.
func (s *ErrorState) Report(kind ErrKind, condition, message string) bool {
	if s.active && s.kind == kind && s.condition == condition {
		return false
	}
	s.active = true
	s.kind = kind
	s.condition = condition
	s.message = message
	return true
}

// Clear drops the stored failure. The next Report returns true again, even
// for the same (kind, condition) pair.
func (s *ErrorState) Clear() {
	s.active = false
	s.kind = ErrNone
	s.condition = ""
	s.message = ""
}

// Active reports whether a failure is currently stored.
func (s *ErrorState) Active() bool {
	return s.active
}

// Kind returns the stored failure kind, or ErrNone.
func (s *ErrorState) Kind() ErrKind {
	return s.kind
}

// Message returns the stored human-readable failure message, or "".
func (s *ErrorState) Message() string {
	return s.message
}
