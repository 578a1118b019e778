// Package workspace defines the Workspace entity and its lifecycle state
// machine. A workspace is a checked-out copy of a generated site project
// plus its sandboxed execution environment.
package workspace

import "time"

// Status represents the workspace lifecycle state.
type Status string

const (
	StatusAvailableForSetup        Status = "available_for_setup"
	StatusInSetup                  Status = "in_setup"
	StatusAvailableForConversation Status = "available_for_conversation"
	StatusInConversation           Status = "in_conversation"
	StatusInReview                 Status = "in_review"
	StatusMerged                   Status = "merged"
	// StatusProblem is reachable from any non-terminal state on an
	// unrecoverable setup or build failure.
	StatusProblem Status = "problem"
)

// transitions is the allowed forward edge set. Problem is handled separately
// in CanTransitionTo since it is reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusAvailableForSetup:        {StatusInSetup},
	StatusInSetup:                  {StatusAvailableForConversation},
	StatusAvailableForConversation: {StatusInConversation, StatusInReview},
	StatusInConversation:           {StatusAvailableForConversation, StatusInReview},
	StatusInReview:                 {StatusMerged, StatusInConversation, StatusAvailableForConversation},
	StatusMerged:                   nil,
	StatusProblem:                  nil,
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusProblem
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle
// transition.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusProblem {
		return !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ConversationReady reports whether edit sessions may start against a
// workspace in this state.
func (s Status) ConversationReady() bool {
	return s == StatusAvailableForConversation || s == StatusInConversation
}

// Workspace is the shared mutable resource every edit session of its
// conversation operates on. RootPath is the on-disk project checkout,
// mounted into the sandbox container at creation time.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	UserEmail   string    `json:"user_email"`
	RootPath    string    `json:"root_path"`
	Status      Status    `json:"status"`
	FailureNote string    `json:"failure_note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to register a new workspace.
type CreateRequest struct {
	Name      string `json:"name"`
	UserEmail string `json:"user_email"`
}
