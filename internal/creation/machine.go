package creation

import (
	"fmt"
	"strconv"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

const workflowName = "creation"

var ladder = workflow.NewLadder([]Status{StatusFailed},
	StatusPending,
	StatusGeneratingImages,
	StatusImagesReady,
	StatusGeneratingPersona,
	StatusPersonaReady,
	StatusComplete,
)

// State is the client view of one creation session.
type State struct {
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Status    Status `json:"status,omitempty" yaml:"status,omitempty"`
	Step      Step   `json:"step" yaml:"step"`
	// Failed overlays Step; Error holds the text shown to the user.
	Failed   bool   `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	AvatarURLs     []string `json:"avatar_urls,omitempty" yaml:"avatar_urls,omitempty"`
	SelectedAvatar string   `json:"selected_avatar,omitempty" yaml:"selected_avatar,omitempty"`
	Persona        *Persona `json:"persona,omitempty" yaml:"persona,omitempty"`
	// Draft is the editable copy of Persona shown on the review step.
	Draft        *Persona `json:"draft,omitempty" yaml:"draft,omitempty"`
	InfluencerID string   `json:"influencer_id,omitempty" yaml:"influencer_id,omitempty"`

	// Attempt counts user retries so each attempt may announce its own failure.
	Attempt   int                `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Announced workflow.Announced `json:"-" yaml:"-"`
}

// Initial returns the state before any session exists.
func Initial() State {
	return State{Step: StepInput}
}

// Clone returns a deep copy safe to hand to observers.
func (s State) Clone() State {
	s.AvatarURLs = append([]string(nil), s.AvatarURLs...)
	s.Persona = s.Persona.clone()
	s.Draft = s.Draft.clone()
	s.Announced = append(workflow.Announced(nil), s.Announced...)
	return s
}

// Update is a server report about a session, from a fetch or an event.
type Update struct {
	SessionID      string
	Status         Status
	Message        string
	Error          string
	Location       string
	Prompt         string
	AvatarURLs     []string
	SelectedAvatar string
	Persona        *Persona
	InfluencerID   string
}

// UpdateFromSession converts a fetched session.
func UpdateFromSession(s Session) Update {
	return Update{
		SessionID:      s.ID,
		Status:         s.Status,
		Error:          s.Error,
		Location:       s.Location,
		Prompt:         s.Prompt,
		AvatarURLs:     s.AvatarURLs,
		SelectedAvatar: s.SelectedAvatarURL,
		Persona:        s.Persona,
		InfluencerID:   s.InfluencerID,
	}
}

// UpdateFromEvent converts a status_update pushed on session:<id>.
func UpdateFromEvent(ev stream.StatusUpdate) (Update, error) {
	u := Update{
		SessionID:  ev.Resource().ID(),
		Status:     Status(ev.Status),
		Message:    ev.Message,
		Error:      ev.Error,
		AvatarURLs: ev.AvatarURLs,
	}
	if len(ev.Persona) > 0 && string(ev.Persona) != "null" {
		var p Persona
		if err := (stream.Envelope{Data: ev.Persona}).DecodeData(&p); err != nil {
			return Update{}, fmt.Errorf("decode persona: %w", err)
		}
		u.Persona = &p
	}
	return u, nil
}

// Apply folds u into s. It is pure: the returned notices are the one-time
// side effects the transition earned.
//
// Updates for another session are ignored. A status behind the furthest one
// seen is ignored. A repeat of the current status only fills in payload
// fields. Failed is admitted from any non-failed status and stops progress
// until a retry starts a new attempt.
func Apply(s State, u Update) (State, []workflow.Notice) {
	if u.SessionID != "" && s.SessionID != "" && u.SessionID != s.SessionID {
		return s, nil
	}
	if u.Status == "" {
		return s, nil
	}
	if s.SessionID == "" {
		s.SessionID = u.SessionID
	}

	admitted := ladder.Admit(s.Status, u.Status)
	if !admitted && u.Status != s.Status {
		return s, nil
	}
	if !admitted && s.Failed {
		return s, nil
	}

	s = merge(s, u)
	if !admitted {
		return s, nil
	}

	var notices []workflow.Notice
	s.Status = u.Status
	if u.Status == StatusFailed {
		s.Failed = true
		s.Error = workflow.FailureMessage(u.Error, u.Message)
		notices = s.announce(notices, "failed/"+strconv.Itoa(s.Attempt), notifications.EventWorkflowFailed, notifications.Payload{
			"workflow": workflowName,
			"error":    s.Error,
			"resource": string(stream.SessionResource(s.SessionID)),
		})
		return s, notices
	}

	if step, ok := StepFor(u.Status); ok {
		s.Step = step
	}
	switch u.Status {
	case StatusImagesReady:
		notices = s.announce(notices, "images_ready", notifications.EventAvatarsReady, notifications.Payload{
			"count":    strconv.Itoa(len(s.AvatarURLs)),
			"resource": string(stream.SessionResource(s.SessionID)),
		})
	case StatusPersonaReady:
		name := ""
		if s.Persona != nil {
			name = s.Persona.Name
		}
		notices = s.announce(notices, "persona_ready", notifications.EventPersonaReady, notifications.Payload{
			"name":     name,
			"resource": string(stream.SessionResource(s.SessionID)),
		})
	case StatusComplete:
		name := ""
		if s.Draft != nil {
			name = s.Draft.Name
		}
		notices = s.announce(notices, "complete", notifications.EventInfluencerCreated, notifications.Payload{
			"name":     name,
			"resource": string(stream.SessionResource(s.SessionID)),
		})
	}
	return s, notices
}

// announce appends a notice the first time key is seen. It updates the
// receiver copy owned by Apply.
func (s *State) announce(notices []workflow.Notice, key string, event notifications.Event, payload notifications.Payload) []workflow.Notice {
	next, first := s.Announced.First(key)
	if !first {
		return notices
	}
	s.Announced = next
	return append(notices, workflow.Notice{Event: event, Payload: payload})
}

func merge(s State, u Update) State {
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.Location != "" {
		s.Location = u.Location
	}
	if u.Prompt != "" {
		s.Prompt = u.Prompt
	}
	if len(u.AvatarURLs) > 0 {
		s.AvatarURLs = append([]string(nil), u.AvatarURLs...)
	}
	if u.SelectedAvatar != "" {
		s.SelectedAvatar = u.SelectedAvatar
	}
	if u.Persona != nil {
		s.Persona = u.Persona.clone()
		if s.Draft == nil {
			s.Draft = u.Persona.clone()
		}
	}
	if u.InfluencerID != "" {
		s.InfluencerID = u.InfluencerID
	}
	return s
}

// Begin resets s for a freshly started session.
func Begin(s State, session Session) (State, []workflow.Notice) {
	next := Initial()
	next.Attempt = s.Attempt
	next.SessionID = session.ID
	next.Location = session.Location
	next.Prompt = session.Prompt
	next, notices := Apply(next, UpdateFromSession(session))
	if next.Status == "" {
		next.Step = StepGeneratingImages
	}
	notices = append([]workflow.Notice{{
		Event: notifications.EventCreationStarted,
		Payload: notifications.Payload{
			"resource": string(stream.SessionResource(session.ID)),
		},
	}}, notices...)
	return next, notices
}

// Select records the chosen avatar.
func Select(s State, url string) (State, error) {
	if s.Step != StepSelectAvatar || s.Failed {
		return s, fmt.Errorf("%w: avatars are not ready for selection", ErrWrongStep)
	}
	for _, candidate := range s.AvatarURLs {
		if candidate == url {
			s.SelectedAvatar = url
			return s, nil
		}
	}
	return s, ErrUnknownAvatar
}

// Edit applies e to the review draft.
func Edit(s State, e Edits) (State, error) {
	if s.Step != StepReview || s.Failed {
		return s, fmt.Errorf("%w: persona is not ready for review", ErrWrongStep)
	}
	s.Draft = e.applyTo(s.Draft)
	return s, nil
}

// PendingEdits returns the difference between the draft and the generated
// persona.
func (s State) PendingEdits() Edits {
	return diff(s.Persona, s.Draft)
}

// Settled reports whether no server work is in flight: the session failed,
// completed, or waits on the user.
func (s State) Settled() bool {
	if s.Failed {
		return true
	}
	switch s.Step {
	case StepSelectAvatar, StepReview, StepComplete:
		return true
	default:
		return false
	}
}

// Retryable reports whether a user retry is allowed.
func (s State) Retryable() bool {
	return s.Failed && s.Location != "" && s.Prompt != ""
}
