package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event is the closed set of decoded stream frames. Handlers switch on the
// concrete type.
type Event interface {
	// Resource returns the identifier the frame is routed by. Connected
	// frames return "".
	Resource() ResourceID
	// Name returns the SSE event type.
	Name() string
	isEvent()
}

// Envelope carries the routing fields shared by every resource event.
type Envelope struct {
	ResourceID ResourceID      `json:"-"`
	Type       string          `json:"-"`
	Data       json.RawMessage `json:"-"`
}

func (e Envelope) Resource() ResourceID { return e.ResourceID }
func (e Envelope) Name() string         { return e.Type }
func (Envelope) isEvent()               {}

// DecodeData unmarshals the raw payload into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// Connected is the first frame of every connection.
type Connected struct {
	Resources []ResourceID
}

func (Connected) Resource() ResourceID { return "" }
func (Connected) Name() string         { return EventConnected }
func (Connected) isEvent()             {}

// ImageSlide pairs a rendered slide with its caption.
type ImageSlide struct {
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption"`
}

// VideoClip is the rendered video for one slide.
type VideoClip struct {
	SlideIndex int    `json:"slideIndex"`
	VideoURL   string `json:"videoUrl"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

// StatusUpdate reports a status change on a session or post.
type StatusUpdate struct {
	Envelope
	Status      string          `json:"status"`
	Stage       string          `json:"stage,omitempty"`
	Message     string          `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
	AvatarURLs  []string        `json:"avatar_urls,omitempty"`
	Persona     json.RawMessage `json:"persona,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	ImageURLs   []string        `json:"image_urls,omitempty"`
	ImageSlides []ImageSlide    `json:"image_slides,omitempty"`
	VideoURLs   []VideoClip     `json:"videoUrls,omitempty"`
}

// PostUpdate reports a post change on an influencer feed.
type PostUpdate struct {
	Envelope
	PostID      string       `json:"post_id"`
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	ImageURLs   []string     `json:"image_urls,omitempty"`
	ImageSlides []ImageSlide `json:"image_slides,omitempty"`
	VideoURLs   []VideoClip  `json:"videoUrls,omitempty"`
}

// VideoStatus reports video generation progress for a post.
type VideoStatus struct {
	Envelope
	Status    string   `json:"status"`
	Message   string   `json:"message,omitempty"`
	Error     string   `json:"error,omitempty"`
	VideoURLs []VideoClip `json:"videoUrls,omitempty"`
}

// AgentEvent is any agent_* frame from the research agent.
type AgentEvent struct {
	Envelope
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
}

// PlannedTask is a research sub-task as announced by orch_plan_ready.
type PlannedTask struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Queries []string `json:"queries"`
}

// ResultCount summarises the research results of one sub-task.
type ResultCount struct {
	WebCount   int `json:"web_count"`
	ImageCount int `json:"image_count"`
}

// OrchestratorEvent is any orch_* frame. Fields absent from a given event
// type are zero.
type OrchestratorEvent struct {
	Envelope
	Message        string                 `json:"message,omitempty"`
	Current        int                    `json:"current,omitempty"`
	Total          int                    `json:"total,omitempty"`
	SubTaskID      string                 `json:"sub_task_id,omitempty"`
	Options        []string               `json:"options,omitempty"`
	SubTasks       []PlannedTask          `json:"sub_tasks,omitempty"`
	ResultsSummary map[string]ResultCount `json:"results_summary,omitempty"`
	PostID         string                 `json:"post_id,omitempty"`
	SlideCount     int                    `json:"slide_count,omitempty"`
	GridLayout     string                 `json:"grid_layout,omitempty"`
	Caption        string                 `json:"caption,omitempty"`
	SlideURLs      []string               `json:"slide_urls,omitempty"`
}

// UnknownEvent preserves frames whose type the client does not model.
type UnknownEvent struct {
	Envelope
}

// Event type names.
const (
	EventConnected    = "connected"
	EventStatusUpdate = "status_update"
	EventPostUpdate   = "post_update"
	EventVideoStatus  = "video_status"
	EventMessage      = "message"

	agentPrefix        = "agent_"
	orchestratorPrefix = "orch_"
)

// Orchestrator event names.
const (
	OrchPlanning      = "orch_planning"
	OrchPlanReady     = "orch_plan_ready"
	OrchResearching   = "orch_researching"
	OrchQuestion      = "orch_question"
	OrchResearchReady = "orch_research_ready"
	OrchGenerating    = "orch_generating"
	OrchPostReady     = "orch_post_ready"
	OrchError         = "orch_error"
)

// ErrMissingResource is returned for resource frames without resource_id.
var ErrMissingResource = errors.New("event payload missing resource_id")

type wireEnvelope struct {
	ResourceID string          `json:"resource_id"`
	Data       json.RawMessage `json:"data"`
}

// Decode turns one SSE frame into its typed variant.
func Decode(frame Frame) (Event, error) {
	name := strings.TrimSpace(frame.Event)
	if name == "" {
		name = EventMessage
	}

	if name == EventConnected {
		var payload struct {
			Resources []ResourceID `json:"resources"`
		}
		if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil {
			return nil, fmt.Errorf("decode connected frame: %w", err)
		}
		return Connected{Resources: payload.Resources}, nil
	}

	var wire wireEnvelope
	if err := json.Unmarshal([]byte(frame.Data), &wire); err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", name, err)
	}
	if strings.TrimSpace(wire.ResourceID) == "" {
		return nil, fmt.Errorf("decode %s frame: %w", name, ErrMissingResource)
	}
	env := Envelope{ResourceID: ResourceID(wire.ResourceID), Type: name, Data: wire.Data}

	switch {
	case name == EventStatusUpdate:
		ev := StatusUpdate{}
		if err := env.DecodeData(&ev); err != nil {
			return nil, payloadError(name, err)
		}
		ev.Envelope = env
		return ev, nil
	case name == EventPostUpdate:
		ev := PostUpdate{}
		if err := env.DecodeData(&ev); err != nil {
			return nil, payloadError(name, err)
		}
		ev.Envelope = env
		return ev, nil
	case name == EventVideoStatus:
		ev := VideoStatus{}
		if err := env.DecodeData(&ev); err != nil {
			return nil, payloadError(name, err)
		}
		ev.Envelope = env
		return ev, nil
	case strings.HasPrefix(name, agentPrefix):
		ev := AgentEvent{}
		if err := env.DecodeData(&ev); err != nil {
			return nil, payloadError(name, err)
		}
		ev.Envelope = env
		return ev, nil
	case strings.HasPrefix(name, orchestratorPrefix):
		ev := OrchestratorEvent{}
		if err := env.DecodeData(&ev); err != nil {
			return nil, payloadError(name, err)
		}
		ev.Envelope = env
		return ev, nil
	default:
		return UnknownEvent{Envelope: env}, nil
	}
}

func payloadError(name string, err error) error {
	return fmt.Errorf("decode %s payload: %w", name, err)
}
