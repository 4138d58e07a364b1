package creation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/workflow"
)

func feed(s State, updates ...Update) (State, []workflow.Notice) {
	var all []workflow.Notice
	for _, u := range updates {
		var notices []workflow.Notice
		s, notices = Apply(s, u)
		all = append(all, notices...)
	}
	return s, all
}

func countEvent(notices []workflow.Notice, event notifications.Event) int {
	n := 0
	for _, notice := range notices {
		if notice.Event == event {
			n++
		}
	}
	return n
}

func TestApplyRepeatedImagesReadyAnnouncesOnce(t *testing.T) {
	urls := []string{"u1", "u2", "u3", "u4"}
	s, notices := feed(Initial(),
		Update{SessionID: "s1", Status: StatusPending},
		Update{SessionID: "s1", Status: StatusGeneratingImages},
		Update{SessionID: "s1", Status: StatusImagesReady, AvatarURLs: urls},
		Update{SessionID: "s1", Status: StatusImagesReady, AvatarURLs: urls},
	)

	assert.Equal(t, StepSelectAvatar, s.Step)
	assert.Equal(t, urls, s.AvatarURLs)
	assert.Empty(t, s.SelectedAvatar)
	assert.Equal(t, 1, countEvent(notices, notifications.EventAvatarsReady))
	assert.Len(t, notices, 1)
}

func TestApplyMapsStatusesToSteps(t *testing.T) {
	tests := []struct {
		status Status
		want   Step
	}{
		{StatusPending, StepGeneratingImages},
		{StatusGeneratingImages, StepGeneratingImages},
		{StatusImagesReady, StepSelectAvatar},
		{StatusGeneratingPersona, StepGeneratingPersona},
		{StatusPersonaReady, StepReview},
		{StatusComplete, StepComplete},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s, _ := Apply(Initial(), Update{SessionID: "s1", Status: tt.status})
			assert.Equal(t, tt.want, s.Step)
			assert.False(t, s.Failed)
		})
	}
}

func TestApplyIgnoresStatusBehindFurthestSeen(t *testing.T) {
	s, _ := feed(Initial(),
		Update{SessionID: "s1", Status: StatusGeneratingPersona},
		Update{SessionID: "s1", Status: StatusImagesReady, AvatarURLs: []string{"late"}},
	)
	assert.Equal(t, StepGeneratingPersona, s.Step)
	assert.Equal(t, StatusGeneratingPersona, s.Status)
	assert.Empty(t, s.AvatarURLs)
}

func TestApplyIgnoresOtherSessions(t *testing.T) {
	s, notices := feed(Initial(),
		Update{SessionID: "s1", Status: StatusGeneratingImages},
		Update{SessionID: "s2", Status: StatusImagesReady, AvatarURLs: []string{"x"}},
	)
	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, StepGeneratingImages, s.Step)
	assert.Empty(t, notices)
}

func TestApplyFailureOverlaysAndHalts(t *testing.T) {
	s, notices := feed(Initial(),
		Update{SessionID: "s1", Status: StatusGeneratingImages},
		Update{SessionID: "s1", Status: StatusFailed, Error: "quota exceeded", Message: "Image generation failed"},
		Update{SessionID: "s1", Status: StatusFailed, Error: "quota exceeded"},
		Update{SessionID: "s1", Status: StatusImagesReady, AvatarURLs: []string{"u1"}},
	)

	assert.True(t, s.Failed)
	assert.Equal(t, "quota exceeded", s.Error)
	assert.Equal(t, StepGeneratingImages, s.Step, "failure keeps the step it interrupted")
	assert.Empty(t, s.AvatarURLs)
	require.Equal(t, 1, countEvent(notices, notifications.EventWorkflowFailed))
	assert.Equal(t, "creation", notices[0].Payload["workflow"])
	assert.Equal(t, "quota exceeded", notices[0].Payload["error"])
}

func TestApplyFailureFallsBackToMessage(t *testing.T) {
	s, _ := Apply(Initial(), Update{SessionID: "s1", Status: StatusFailed, Message: "Persona generation failed"})
	assert.Equal(t, "Persona generation failed", s.Error)
}

func TestApplyPersonaReadyPrefillsDraft(t *testing.T) {
	persona := &Persona{Name: "Aiko", Bio: "Tokyo tech", Niches: []string{"tech", "travel"}}
	s, notices := feed(Initial(),
		Update{SessionID: "s1", Status: StatusGeneratingPersona},
		Update{SessionID: "s1", Status: StatusPersonaReady, Persona: persona},
	)
	require.NotNil(t, s.Draft)
	assert.Equal(t, StepReview, s.Step)
	assert.Equal(t, "Aiko", s.Draft.Name)
	assert.Equal(t, []string{"tech", "travel"}, s.Draft.Niches)
	require.Len(t, notices, 1)
	assert.Equal(t, notifications.EventPersonaReady, notices[0].Event)
	assert.Equal(t, "Aiko", notices[0].Payload["name"])

	persona.Niches[0] = "mutated"
	assert.Equal(t, "tech", s.Draft.Niches[0], "state must not alias the update")
}

func TestApplyDuplicatePersonaKeepsLocalEdits(t *testing.T) {
	persona := &Persona{Name: "Aiko", Bio: "bio"}
	s, _ := Apply(Initial(), Update{SessionID: "s1", Status: StatusPersonaReady, Persona: persona})
	name := "Aiko Tanaka"
	s, err := Edit(s, Edits{Name: &name})
	require.NoError(t, err)

	s, notices := Apply(s, Update{SessionID: "s1", Status: StatusPersonaReady, Persona: persona})
	assert.Empty(t, notices)
	assert.Equal(t, "Aiko Tanaka", s.Draft.Name)
	assert.Equal(t, "Aiko", s.Persona.Name)

	edits := s.PendingEdits()
	require.NotNil(t, edits.Name)
	assert.Equal(t, "Aiko Tanaka", *edits.Name)
	assert.Nil(t, edits.Bio)
}

func TestSelectRequiresOfferedAvatar(t *testing.T) {
	s, _ := Apply(Initial(), Update{SessionID: "s1", Status: StatusImagesReady, AvatarURLs: []string{"u1", "u2"}})

	_, err := Select(s, "u9")
	assert.ErrorIs(t, err, ErrUnknownAvatar)

	s, err = Select(s, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", s.SelectedAvatar)

	_, err = Select(Initial(), "u1")
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestUpdateFromEventDecodesPersona(t *testing.T) {
	ev := stream.StatusUpdate{
		Envelope: stream.Envelope{ResourceID: stream.SessionResource("s1"), Type: stream.EventStatusUpdate},
		Status:   "persona_ready",
		Persona:  []byte(`{"name":"Aiko","bio":"b","niches":["tech"],"platformFocus":"Instagram"}`),
	}
	u, err := UpdateFromEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "s1", u.SessionID)
	require.NotNil(t, u.Persona)
	assert.Equal(t, "Instagram", u.Persona.PlatformFocus)

	ev.Persona = []byte(`[1,2]`)
	_, err = UpdateFromEvent(ev)
	assert.Error(t, err)
}

func TestApplyNeverRegressesStep(t *testing.T) {
	statuses := []Status{
		StatusPending, StatusGeneratingImages, StatusImagesReady,
		StatusGeneratingPersona, StatusPersonaReady, StatusComplete,
	}
	order := map[Step]int{
		StepInput: 0, StepGeneratingImages: 1, StepSelectAvatar: 2,
		StepGeneratingPersona: 3, StepReview: 4, StepComplete: 5,
	}
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOf(rapid.SampledFrom(statuses)).Draw(t, "statuses")
		s := Initial()
		announced := map[notifications.Event]int{}
		for _, status := range seq {
			prev := s.Step
			var notices []workflow.Notice
			s, notices = Apply(s, Update{SessionID: "s1", Status: status})
			if order[s.Step] < order[prev] {
				t.Fatalf("step regressed from %s to %s on %s", prev, s.Step, status)
			}
			for _, n := range notices {
				announced[n.Event]++
				if announced[n.Event] > 1 {
					t.Fatalf("%s announced twice", n.Event)
				}
			}
		}
	})
}

func TestSettledMeansNothingInFlight(t *testing.T) {
	assert.False(t, State{Step: StepGeneratingImages}.Settled())
	assert.False(t, State{Step: StepGeneratingPersona}.Settled())
	assert.True(t, State{Step: StepSelectAvatar}.Settled())
	assert.True(t, State{Step: StepReview}.Settled())
	assert.True(t, State{Step: StepComplete}.Settled())
	assert.True(t, State{Step: StepGeneratingImages, Failed: true}.Settled())
}
