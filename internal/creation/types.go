package creation

import (
	"encoding/json"
	"strings"
)

// Status is the server-owned phase of a creation session.
type Status string

const (
	StatusPending           Status = "pending"
	StatusGeneratingImages  Status = "generating_images"
	StatusImagesReady       Status = "images_ready"
	StatusGeneratingPersona Status = "generating_persona"
	StatusPersonaReady      Status = "persona_ready"
	StatusComplete          Status = "complete"
	StatusFailed            Status = "failed"
)

// Step is what the user is looking at.
type Step string

const (
	StepInput             Step = "input"
	StepGeneratingImages  Step = "generating_images"
	StepSelectAvatar      Step = "select_avatar"
	StepGeneratingPersona Step = "generating_persona"
	StepReview            Step = "review"
	StepComplete          Step = "complete"
)

// StepFor maps a server status to its step. Failed has no step of its own;
// it is reported through State.Failed on top of the last step.
func StepFor(status Status) (Step, bool) {
	switch status {
	case StatusPending, StatusGeneratingImages:
		return StepGeneratingImages, true
	case StatusImagesReady:
		return StepSelectAvatar, true
	case StatusGeneratingPersona:
		return StepGeneratingPersona, true
	case StatusPersonaReady:
		return StepReview, true
	case StatusComplete:
		return StepComplete, true
	default:
		return "", false
	}
}

// Terminal reports whether no further server event can change the session.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Active reports whether the server still counts the session as in progress.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusGeneratingImages, StatusImagesReady, StatusGeneratingPersona, StatusPersonaReady:
		return true
	default:
		return false
	}
}

// Persona is the generated profile offered for review.
type Persona struct {
	Name              string   `json:"name" yaml:"name"`
	Handle            string   `json:"handle,omitempty" yaml:"handle,omitempty"`
	Bio               string   `json:"bio" yaml:"bio"`
	Niches            []string `json:"niches,omitempty" yaml:"niches,omitempty"`
	Traits            []string `json:"traits,omitempty" yaml:"traits,omitempty"`
	Tone              string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	PlatformFocus     string   `json:"platformFocus,omitempty" yaml:"platform_focus,omitempty"`
	VisualDescription string   `json:"visualDescription,omitempty" yaml:"visual_description,omitempty"`
	Timezone          string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

func (p *Persona) clone() *Persona {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Niches = append([]string(nil), p.Niches...)
	cp.Traits = append([]string(nil), p.Traits...)
	return &cp
}

// Session is the server representation of a creation session.
type Session struct {
	ID                string   `json:"id"`
	OwnerID           string   `json:"owner_id,omitempty"`
	Status            Status   `json:"status"`
	Location          string   `json:"location"`
	Prompt            string   `json:"prompt"`
	AvatarURLs        []string `json:"avatar_urls"`
	SelectedAvatarURL string   `json:"selected_avatar_url,omitempty"`
	Persona           *Persona `json:"generated_persona,omitempty"`
	InfluencerID      string   `json:"influencer_id,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Edits overrides persona fields at confirmation. Nil fields keep the
// generated value.
type Edits struct {
	Name   *string  `json:"name,omitempty"`
	Bio    *string  `json:"bio,omitempty"`
	Handle *string  `json:"handle,omitempty"`
	Niches []string `json:"niches,omitempty"`
}

// Empty reports whether no field is overridden.
func (e Edits) Empty() bool {
	return e.Name == nil && e.Bio == nil && e.Handle == nil && e.Niches == nil
}

// applyTo returns p with the edits applied.
func (e Edits) applyTo(p *Persona) *Persona {
	out := p.clone()
	if out == nil {
		out = &Persona{}
	}
	if e.Name != nil {
		out.Name = strings.TrimSpace(*e.Name)
	}
	if e.Bio != nil {
		out.Bio = strings.TrimSpace(*e.Bio)
	}
	if e.Handle != nil {
		out.Handle = strings.TrimPrefix(strings.TrimSpace(*e.Handle), "@")
	}
	if e.Niches != nil {
		out.Niches = append([]string(nil), e.Niches...)
	}
	return out
}

// diff returns the edits that turn base into draft.
func diff(base, draft *Persona) Edits {
	var e Edits
	if draft == nil {
		return e
	}
	if base == nil {
		base = &Persona{}
	}
	if draft.Name != base.Name {
		e.Name = &draft.Name
	}
	if draft.Bio != base.Bio {
		e.Bio = &draft.Bio
	}
	if draft.Handle != base.Handle {
		e.Handle = &draft.Handle
	}
	if strings.Join(draft.Niches, "\x00") != strings.Join(base.Niches, "\x00") {
		e.Niches = append([]string{}, draft.Niches...)
	}
	return e
}

// Entity is the generic record the backend stores influencers in.
type Entity struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	OwnerID string          `json:"owner_id,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Influencer is the confirmed persona.
type Influencer struct {
	ID        string `json:"id" yaml:"id"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatar_url,omitempty"`
	Location  string `json:"location,omitempty" yaml:"location,omitempty"`
	Persona   `yaml:",inline"`
}

// Influencer decodes the entity data.
func (e Entity) Influencer() (Influencer, error) {
	var inf Influencer
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &inf); err != nil {
			return Influencer{}, err
		}
	}
	inf.ID = e.ID
	return inf, nil
}
