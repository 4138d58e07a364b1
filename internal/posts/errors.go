package posts

import "github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"

var (
	// ErrInvalidRequest reports a create request without influencer or prompt.
	ErrInvalidRequest = workflow.NewError("influencer and prompt are required")
	// ErrNotReady reports an action the post's status does not allow.
	ErrNotReady = workflow.NewError("post is not ready")
	// ErrNotTracking reports an action on a tracker with no post.
	ErrNotTracking = workflow.NewError("no post is being tracked")
)
