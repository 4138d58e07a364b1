package creation

import "github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"

var (
	// ErrMissingInput is returned by Start without a location or prompt.
	ErrMissingInput = workflow.NewError("location and prompt are required")
	// ErrWrongStep is returned for an action the current step does not allow.
	ErrWrongStep = workflow.NewError("action not allowed at this step")
	// ErrUnknownAvatar is returned when selecting a URL that was not offered.
	ErrUnknownAvatar = workflow.NewError("avatar was not offered for this session")
	// ErrNoSession is returned when an action needs a session and none exists.
	ErrNoSession = workflow.NewError("no creation session in progress")
	// ErrSessionInProgress is returned by Start while another session is active.
	ErrSessionInProgress = workflow.NewError("a creation session is already in progress")
)
