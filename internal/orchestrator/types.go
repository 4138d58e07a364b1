package orchestrator

import "slices"

// Phase is the server-owned phase of an orchestrator session.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhasePlanReview Phase = "plan_review"
	PhaseResearch   Phase = "research"
	PhaseSelection  Phase = "selection"
	PhaseGeneration Phase = "generation"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// Terminal reports whether the session can no longer change on its own.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// Sub-task statuses reported by the server.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskComplete   = "complete"
	TaskFailed     = "failed"
)

// Task is one research sub-task.
type Task struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Queries []string `json:"queries" yaml:"queries"`
	Status  string   `json:"status,omitempty" yaml:"status,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (t Task) clone() Task {
	t.Queries = slices.Clone(t.Queries)
	return t
}

// WebItem is a web search result.
type WebItem struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Snippet string `json:"snippet" yaml:"snippet"`
	URL     string `json:"url" yaml:"url"`
}

// ImageItem is an image search result.
type ImageItem struct {
	ID        string `json:"id" yaml:"id"`
	Thumbnail string `json:"thumbnail" yaml:"thumbnail"`
	ImageURL  string `json:"image_url" yaml:"image_url"`
	Title     string `json:"title" yaml:"title"`
}

// Results holds the research output of one sub-task.
type Results struct {
	WebItems []WebItem   `json:"web_items" yaml:"web_items"`
	Images   []ImageItem `json:"images" yaml:"images"`
}

// Selections are the curated result ids sent for generation.
type Selections struct {
	WebItemIDs []string `json:"web_item_ids" yaml:"web_item_ids"`
	ImageIDs   []string `json:"image_ids" yaml:"image_ids"`
}

// Empty reports whether nothing is selected.
func (s Selections) Empty() bool {
	return len(s.WebItemIDs) == 0 && len(s.ImageIDs) == 0
}

func (s Selections) clone() Selections {
	return Selections{WebItemIDs: slices.Clone(s.WebItemIDs), ImageIDs: slices.Clone(s.ImageIDs)}
}

// ItemKind names the two kinds of selectable result.
type ItemKind string

const (
	ItemWeb   ItemKind = "web"
	ItemImage ItemKind = "image"
)

// GeneratedPost is the final output of a session.
type GeneratedPost struct {
	PostingID  string   `json:"posting_id,omitempty" yaml:"posting_id,omitempty"`
	SlideCount int      `json:"slide_count" yaml:"slide_count"`
	GridLayout string   `json:"grid_layout" yaml:"grid_layout"`
	SlideURLs  []string `json:"slide_urls" yaml:"slide_urls"`
	Caption    string   `json:"caption" yaml:"caption"`
}

// Session is the server representation of an orchestrator session.
type Session struct {
	SessionID       string             `json:"session_id"`
	InfluencerID    string             `json:"influencer_id"`
	Query           string             `json:"query"`
	PostTypeHint    string             `json:"post_type_hint,omitempty"`
	Phase           Phase              `json:"phase"`
	ResearchPlan    []Task             `json:"research_plan"`
	ResearchResults map[string]Results `json:"research_results"`
	UserSelections  *Selections        `json:"user_selections,omitempty"`
	GeneratedPost   *GeneratedPost     `json:"generated_post,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Question is the agent asking how to handle a weak sub-task.
type Question struct {
	SubTaskID string   `json:"sub_task_id" yaml:"sub_task_id"`
	Message   string   `json:"message" yaml:"message"`
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Progress is the research position reported by orch_researching.
type Progress struct {
	Current int `json:"current" yaml:"current"`
	Total   int `json:"total" yaml:"total"`
}
