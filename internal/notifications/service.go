package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
)

const userAgent = "Aura-Go/0.1.0"

// Event enumerates the notices workflows emit.
type Event string

const (
	EventCreationStarted      Event = "creation_started"
	EventAvatarsReady         Event = "avatars_ready"
	EventPersonaReady         Event = "persona_ready"
	EventInfluencerCreated    Event = "influencer_created"
	EventPostCreated          Event = "post_created"
	EventPostReady            Event = "post_ready"
	EventVideoReady           Event = "video_ready"
	EventPlanReady            Event = "plan_ready"
	EventResearchProgress     Event = "research_progress"
	EventResearchReady        Event = "research_ready"
	EventOrchestratorQuestion Event = "orchestrator_question"
	EventGeneratedPostReady   Event = "generated_post_ready"
	EventWorkflowFailed       Event = "workflow_failed"
	EventStreamLost           Event = "stream_lost"
	EventLoggedOut            Event = "logged_out"
	EventTestNotification     Event = "test"
)

// Level classifies how a notice is displayed.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Payload carries event-specific values. Common keys: "workflow", "resource",
// "name", "message", "error", "count".
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service is the notification surface used by workflows.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Notice is the rendered form of an event.
type Notice struct {
	Level    Level
	Title    string
	Message  string
	Tags     []string
	Priority string
}

// Render turns an event into display text. The console and ntfy services
// share it so both read the same.
func Render(event Event, payload Payload) Notice {
	name := payload.str("name")
	message := payload.str("message")
	switch event {
	case EventCreationStarted:
		return Notice{Level: LevelInfo, Title: "Aura - Creation Started", Message: withDefault(message, "Generating avatar images..."), Tags: []string{"aura", "creation"}}
	case EventAvatarsReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Avatars Ready", Message: withDefault(message, fmt.Sprintf("%s avatars ready. Choose one to continue.", withDefault(payload.str("count"), "New"))), Tags: []string{"aura", "creation", "avatars"}}
	case EventPersonaReady:
		text := "Persona ready for review."
		if name != "" {
			text = fmt.Sprintf("Meet %s! Review and confirm to create.", name)
		}
		return Notice{Level: LevelSuccess, Title: "Aura - Persona Ready", Message: text, Tags: []string{"aura", "creation", "persona"}}
	case EventInfluencerCreated:
		return Notice{Level: LevelSuccess, Title: "Aura - Influencer Created", Message: fmt.Sprintf("%s is live.", withDefault(name, "Your influencer")), Tags: []string{"aura", "creation", "completed"}, Priority: "high"}
	case EventPostCreated:
		return Notice{Level: LevelInfo, Title: "Aura - Post Started", Message: withDefault(message, "Post created. Generation started."), Tags: []string{"aura", "post"}}
	case EventPostReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Post Ready", Message: withDefault(message, "Post ready!"), Tags: []string{"aura", "post", "ready"}}
	case EventVideoReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Videos Ready", Message: withDefault(message, "Videos ready!"), Tags: []string{"aura", "post", "video"}}
	case EventPlanReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Research Plan", Message: withDefault(message, "Research plan ready for review"), Tags: []string{"aura", "orchestrator", "plan"}}
	case EventResearchProgress:
		return Notice{Level: LevelInfo, Title: "Aura - Researching", Message: withDefault(message, "Researching..."), Tags: []string{"aura", "orchestrator", "research"}}
	case EventResearchReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Research Complete", Message: withDefault(message, "Research complete! Select items to include."), Tags: []string{"aura", "orchestrator", "research"}}
	case EventOrchestratorQuestion:
		return Notice{Level: LevelInfo, Title: "Aura - Input Needed", Message: withDefault(message, "The research agent needs input."), Tags: []string{"aura", "orchestrator", "question"}, Priority: "high"}
	case EventGeneratedPostReady:
		return Notice{Level: LevelSuccess, Title: "Aura - Post Generated", Message: withDefault(message, "Post generated successfully!"), Tags: []string{"aura", "orchestrator", "completed"}}
	case EventWorkflowFailed:
		var b strings.Builder
		b.WriteString("Error")
		if wf := payload.str("workflow"); wf != "" {
			b.WriteString(" in ")
			b.WriteString(wf)
		}
		b.WriteString(": ")
		b.WriteString(withDefault(payload.str("error"), withDefault(message, "unknown")))
		return Notice{Level: LevelError, Title: "Aura - Error", Message: b.String(), Tags: []string{"aura", "error", "alert"}, Priority: "high"}
	case EventStreamLost:
		return Notice{Level: LevelError, Title: "Aura - Live Updates Stopped", Message: withDefault(message, "Lost connection to live updates."), Tags: []string{"aura", "stream", "alert"}}
	case EventLoggedOut:
		return Notice{Level: LevelError, Title: "Aura - Signed Out", Message: withDefault(message, "Your session has expired. Please sign in again."), Tags: []string{"aura", "auth"}}
	case EventTestNotification:
		return Notice{Level: LevelInfo, Title: "Aura - Test", Message: "Notification system test", Tags: []string{"aura", "test"}, Priority: "low"}
	default:
		return Notice{Level: LevelInfo, Title: "Aura", Message: withDefault(message, string(event)), Tags: []string{"aura"}}
	}
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// NewService builds the notification fan-out: console output to w (skipped
// when w is nil) plus ntfy when a topic is configured.
func NewService(cfg *config.Config, w io.Writer) Service {
	var services []Service
	if w != nil {
		services = append(services, NewConsole(w))
	}
	if cfg != nil {
		if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
			services = append(services, newNtfy(cfg))
		}
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return multiService(services)
	}
}

// Console writes coloured notices.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewConsole returns a console service. Colour follows fatih/color's terminal
// detection (and NO_COLOR).
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, now: time.Now}
}

var (
	infoMark    = color.New(color.FgCyan).SprintFunc()
	successMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorMark   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func (c *Console) Publish(_ context.Context, event Event, payload Payload) error {
	notice := Render(event, payload)
	var mark string
	switch notice.Level {
	case LevelSuccess:
		mark = successMark("✓")
	case LevelError:
		mark = errorMark("✗")
	default:
		mark = infoMark("•")
	}
	line := fmt.Sprintf("%s %s %s", c.now().Format("15:04:05"), mark, notice.Message)
	if resource := payload.str("resource"); resource != "" {
		line += color.New(color.Faint).Sprintf(" [%s]", resource)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line)
	return err
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	postReady  bool
	sendErrors bool
}

func newNtfy(cfg *config.Config) *ntfyService {
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:   strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:     &http.Client{Timeout: timeout},
		postReady:  cfg.Notifications.PostReady,
		sendErrors: cfg.Notifications.Errors,
	}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.wants(event) {
		return nil
	}
	return n.send(ctx, Render(event, payload))
}

// wants filters chatty progress events; only milestones go to the phone.
func (n *ntfyService) wants(event Event) bool {
	switch event {
	case EventPostReady, EventVideoReady, EventGeneratedPostReady:
		return n.postReady
	case EventWorkflowFailed, EventStreamLost, EventLoggedOut:
		return n.sendErrors
	case EventResearchProgress, EventCreationStarted, EventPostCreated:
		return false
	default:
		return true
	}
}

func (n *ntfyService) send(ctx context.Context, data Notice) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.Message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.Title != "" {
		req.Header.Set("Title", data.Title)
	}
	if len(data.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.Tags, ","))
	}
	if data.Priority != "" && data.Priority != "default" {
		req.Header.Set("Priority", data.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

// Noop returns a Service that discards everything.
func Noop() Service { return noopService{} }

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Recorder captures published events for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one captured publish.
type Recorded struct {
	Event   Event
	Payload Payload
}

func (r *Recorder) Publish(_ context.Context, event Event, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many times event was published.
func (r *Recorder) Count(event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}
