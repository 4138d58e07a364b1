package creation_test

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/creation"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/testsupport"
)

// fakeCreation serves the /creation routes from memory.
type fakeCreation struct {
	mu       sync.Mutex
	sessions map[string]*creation.Session
	nextID   int
	confirm  map[string]any
}

func newFakeCreation(b *testsupport.Backend) *fakeCreation {
	f := &fakeCreation{sessions: map[string]*creation.Session{}}
	b.Mux.HandleFunc("POST /creation/start", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Location, Prompt string }
		_ = testsupport.DecodeJSON(r, &body)
		f.mu.Lock()
		f.nextID++
		id := "sess" + strconv.Itoa(f.nextID)
		s := &creation.Session{ID: id, Status: creation.StatusPending, Location: body.Location, Prompt: body.Prompt, AvatarURLs: []string{}}
		f.sessions[id] = s
		cp := *s
		f.mu.Unlock()
		testsupport.WriteJSON(w, http.StatusOK, cp)
	})
	b.Mux.HandleFunc("GET /creation/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		s, ok := f.sessions[r.PathValue("id")]
		var cp creation.Session
		if ok {
			cp = *s
		}
		f.mu.Unlock()
		if !ok {
			testsupport.WriteJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
			return
		}
		testsupport.WriteJSON(w, http.StatusOK, cp)
	})
	b.Mux.HandleFunc("GET /creation/{$}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, s := range f.sessions {
			if s.Status.Active() {
				testsupport.WriteJSON(w, http.StatusOK, map[string]any{"session": s})
				return
			}
		}
		testsupport.WriteJSON(w, http.StatusOK, map[string]any{"session": nil})
	})
	b.Mux.HandleFunc("DELETE /creation/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_, ok := f.sessions[r.PathValue("id")]
		delete(f.sessions, r.PathValue("id"))
		f.mu.Unlock()
		if !ok {
			testsupport.WriteJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
			return
		}
		testsupport.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session discarded"})
	})
	b.Mux.HandleFunc("POST /creation/{id}/select", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AvatarURL string `json:"avatar_url"`
		}
		_ = testsupport.DecodeJSON(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		s := f.sessions[r.PathValue("id")]
		if s.Status != creation.StatusImagesReady {
			testsupport.WriteJSON(w, http.StatusBadRequest, map[string]string{"detail": "Session not ready for selection. Status: " + string(s.Status)})
			return
		}
		s.SelectedAvatarURL = body.AvatarURL
		testsupport.WriteJSON(w, http.StatusOK, s)
	})
	b.Mux.HandleFunc("POST /creation/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		_ = testsupport.DecodeJSON(r, &body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.confirm = body
		s := f.sessions[r.PathValue("id")]
		if s.Status != creation.StatusPersonaReady {
			testsupport.WriteJSON(w, http.StatusBadRequest, map[string]string{"detail": "Persona not ready"})
			return
		}
		name := s.Persona.Name
		if v, ok := body["name"].(string); ok {
			name = v
		}
		s.Status = creation.StatusComplete
		s.InfluencerID = "inf1"
		testsupport.WriteJSON(w, http.StatusOK, map[string]any{
			"message": "Influencer created successfully",
			"influencer": map[string]any{
				"id":   "inf1",
				"kind": "influencer",
				"data": map[string]any{"name": name, "bio": s.Persona.Bio, "avatarUrl": s.SelectedAvatarURL, "location": s.Location},
			},
		})
	})
	return f
}

// set changes server state the way a background job would.
func (f *fakeCreation) set(id string, fn func(*creation.Session)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.sessions[id])
}

func (f *fakeCreation) exists(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[id]
	return ok
}

type fixture struct {
	flow     *creation.Flow
	backend  *testsupport.Backend
	server   *fakeCreation
	sub      *testsupport.FakeSubscriber
	creds    *credentials.Store
	recorder *notifications.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := testsupport.NewBackend(t)
	fx := &fixture{
		backend:  backend,
		server:   newFakeCreation(backend),
		sub:      testsupport.NewFakeSubscriber(),
		creds:    testsupport.NewCredentials(t),
		recorder: &notifications.Recorder{},
	}
	fx.flow = fx.newFlow(t)
	return fx
}

func (fx *fixture) newFlow(t *testing.T) *creation.Flow {
	t.Helper()
	flow, err := creation.NewFlow(creation.Deps{
		API:      creation.NewAPI(fx.backend.Client(t)),
		Stream:   fx.sub,
		Sessions: fx.creds,
		Notifier: fx.recorder,
	})
	require.NoError(t, err)
	t.Cleanup(flow.Close)
	return flow
}

func (fx *fixture) push(id string, data map[string]any) {
	fx.sub.Deliver(testsupport.StatusEvent(stream.SessionResource(id), data))
}

func (fx *fixture) persisted(t *testing.T) (string, bool) {
	t.Helper()
	id, ok, err := fx.creds.Session(context.Background(), credentials.WorkflowCreation)
	require.NoError(t, err)
	return id, ok
}

func TestStartThenImagesReadyOffersAvatars(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	state := fx.flow.State()
	require.NotEmpty(t, state.SessionID)
	assert.Equal(t, creation.StepGeneratingImages, state.Step)
	assert.True(t, fx.sub.Subscribed(stream.SessionResource(state.SessionID)))
	id, ok := fx.persisted(t)
	require.True(t, ok)
	assert.Equal(t, state.SessionID, id)

	urls := []string{"u1", "u2", "u3", "u4"}
	fx.push(id, map[string]any{"status": "generating_images", "message": "Generating avatar images..."})
	fx.push(id, map[string]any{"status": "images_ready", "avatar_urls": urls})

	state = fx.flow.State()
	assert.Equal(t, creation.StepSelectAvatar, state.Step)
	assert.Equal(t, urls, state.AvatarURLs)
	assert.Empty(t, state.SelectedAvatar)
	assert.Equal(t, 1, fx.recorder.Count(notifications.EventCreationStarted))
	assert.Equal(t, 1, fx.recorder.Count(notifications.EventAvatarsReady))
}

func TestSelectAvatarThenPersonaReadyPrefillsReview(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID

	urls := []string{"u1", "u2", "u3", "u4"}
	fx.server.set(id, func(s *creation.Session) {
		s.Status = creation.StatusImagesReady
		s.AvatarURLs = urls
	})
	fx.push(id, map[string]any{"status": "images_ready", "avatar_urls": urls})

	require.NoError(t, fx.flow.SelectAvatar(ctx, "u2"))
	assert.Equal(t, "u2", fx.flow.State().SelectedAvatar)

	fx.push(id, map[string]any{"status": "generating_persona"})
	fx.push(id, map[string]any{
		"status":  "persona_ready",
		"persona": map[string]any{"name": "Aiko", "bio": "...", "niches": []string{"tech", "travel"}},
		"message": "Meet Aiko! Review and confirm to create.",
	})

	state := fx.flow.State()
	assert.Equal(t, creation.StepReview, state.Step)
	require.NotNil(t, state.Draft)
	assert.Equal(t, "Aiko", state.Draft.Name)
	assert.Equal(t, []string{"tech", "travel"}, state.Draft.Niches)
}

func TestSelectAvatarRejectsUnofferedURL(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Lisbon", "surf photographer"))
	id := fx.flow.State().SessionID
	fx.push(id, map[string]any{"status": "images_ready", "avatar_urls": []string{"u1"}})

	err := fx.flow.SelectAvatar(ctx, "u7")
	assert.ErrorIs(t, err, creation.ErrUnknownAvatar)
	assert.Equal(t, 1, fx.recorder.Count(notifications.EventWorkflowFailed))
	assert.NotContains(t, fx.backend.Requests(), "POST /creation/"+id+"/select")
}

func TestConfirmSendsEditsAndCompletes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID
	persona := &creation.Persona{Name: "Aiko", Bio: "bio", Niches: []string{"tech"}}
	fx.server.set(id, func(s *creation.Session) {
		s.Status = creation.StatusPersonaReady
		s.SelectedAvatarURL = "u2"
		s.Persona = persona
	})
	fx.push(id, map[string]any{"status": "persona_ready", "persona": persona})

	name := "Aiko Tanaka"
	require.NoError(t, fx.flow.Edit(creation.Edits{Name: &name}))
	inf, err := fx.flow.Confirm(ctx)
	require.NoError(t, err)

	assert.Equal(t, "inf1", inf.ID)
	assert.Equal(t, "Aiko Tanaka", inf.Name)
	assert.Equal(t, map[string]any{"name": "Aiko Tanaka"}, fx.server.confirm)

	state := fx.flow.State()
	assert.Equal(t, creation.StepComplete, state.Step)
	assert.Equal(t, "inf1", state.InfluencerID)
	assert.False(t, fx.sub.Subscribed(stream.SessionResource(id)))
	_, ok := fx.persisted(t)
	assert.False(t, ok, "completed session must release the persisted id")
	assert.Equal(t, 1, fx.recorder.Count(notifications.EventInfluencerCreated))
}

func TestConfirmWithoutEditsSendsNoBody(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Oslo", "cold water swimmer"))
	id := fx.flow.State().SessionID
	persona := &creation.Persona{Name: "Ingrid", Bio: "bio"}
	fx.server.set(id, func(s *creation.Session) {
		s.Status = creation.StatusPersonaReady
		s.Persona = persona
	})
	fx.push(id, map[string]any{"status": "persona_ready", "persona": persona})

	_, err := fx.flow.Confirm(ctx)
	require.NoError(t, err)
	assert.Empty(t, fx.server.confirm)
}

func TestDiscardDeletesClearsUnsubscribesAndResets(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID

	var order []string
	fx.flow.OnChange(func(s creation.State) {
		if s.Step == creation.StepInput {
			_, persisted := fx.persisted(t)
			order = append(order, "reset")
			assert.False(t, persisted, "persisted id must be cleared before reset")
			assert.False(t, fx.sub.Subscribed(stream.SessionResource(id)), "subscription must be gone before reset")
		}
	})

	require.NoError(t, fx.flow.Discard(ctx))
	assert.False(t, fx.server.exists(id))
	assert.Equal(t, []string{"reset"}, order)
	assert.Equal(t, creation.StepInput, fx.flow.State().Step)
	assert.Empty(t, fx.flow.State().SessionID)

	fx.push(id, map[string]any{"status": "images_ready", "avatar_urls": []string{"late"}})
	assert.Equal(t, creation.StepInput, fx.flow.State().Step)
}

func TestRestoreFetchesBeforeSubscribing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID
	fx.flow.Close()

	fx.server.set(id, func(s *creation.Session) {
		s.Status = creation.StatusImagesReady
		s.AvatarURLs = []string{"u1", "u2"}
	})

	restored := fx.newFlow(t)
	found, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)

	state := restored.State()
	assert.Equal(t, creation.StepSelectAvatar, state.Step)
	assert.Equal(t, []string{"u1", "u2"}, state.AvatarURLs)
	assert.True(t, fx.sub.Subscribed(stream.SessionResource(id)))

	requests := fx.backend.Requests()
	assert.Equal(t, "GET /creation/"+id, requests[len(requests)-1])
}

func TestRestoreCompletedSessionDoesNotSubscribe(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID
	fx.flow.Close()
	fx.server.set(id, func(s *creation.Session) {
		s.Status = creation.StatusComplete
		s.InfluencerID = "inf9"
	})

	restored := fx.newFlow(t)
	found, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, creation.StepComplete, restored.State().Step)
	assert.False(t, fx.sub.Subscribed(stream.SessionResource(id)))
	_, ok := fx.persisted(t)
	assert.False(t, ok)
}

func TestRestoreForgetsMissingSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.creds.SetSession(ctx, credentials.WorkflowCreation, "gone"))

	found, err := fx.flow.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	_, ok := fx.persisted(t)
	assert.False(t, ok)
	assert.Empty(t, fx.sub.Active())
}

func TestRestoreFallsBackToActiveSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID
	fx.flow.Close()
	require.NoError(t, fx.creds.ClearSession(ctx, credentials.WorkflowCreation))

	restored := fx.newFlow(t)
	found, err := restored.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, restored.State().SessionID)
	persisted, ok := fx.persisted(t)
	require.True(t, ok)
	assert.Equal(t, id, persisted)
	assert.Contains(t, fx.backend.Requests(), "GET /creation/")
}

func TestFailurePushHaltsUntilRetry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	first := fx.flow.State().SessionID

	fx.push(first, map[string]any{"status": "failed", "error": "quota exceeded", "message": "Image generation failed"})
	state := fx.flow.State()
	assert.True(t, state.Failed)
	assert.Equal(t, "quota exceeded", state.Error)
	assert.False(t, fx.sub.Subscribed(stream.SessionResource(first)))
	_, ok := fx.persisted(t)
	assert.True(t, ok, "failed session stays persisted for retry or discard")

	fx.push(first, map[string]any{"status": "images_ready", "avatar_urls": []string{"u1"}})
	assert.True(t, fx.flow.State().Failed)

	require.NoError(t, fx.flow.Retry(ctx))
	state = fx.flow.State()
	assert.NotEqual(t, first, state.SessionID)
	assert.False(t, state.Failed)
	assert.Equal(t, creation.StepGeneratingImages, state.Step)
	assert.Equal(t, 1, state.Attempt)
	assert.False(t, fx.server.exists(first))

	fx.push(state.SessionID, map[string]any{"status": "failed", "error": "quota exceeded"})
	assert.Equal(t, 2, fx.recorder.Count(notifications.EventWorkflowFailed), "each attempt announces its own failure")
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))

	err := fx.flow.Start(ctx, "Paris", "chef")
	assert.ErrorIs(t, err, creation.ErrSessionInProgress)
	assert.Equal(t, 1, strings.Count(strings.Join(fx.backend.Requests(), "\n"), "POST /creation/start"))
}

func TestServerRejectionSurfacesDetail(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.flow.Start(ctx, "Tokyo, Japan", "minimalist tech reviewer"))
	id := fx.flow.State().SessionID
	// The push claims images are ready but the server still says pending.
	fx.push(id, map[string]any{"status": "images_ready", "avatar_urls": []string{"u1"}})

	err := fx.flow.SelectAvatar(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, "Session not ready for selection. Status: pending", fx.flow.State().Error)
	events := fx.recorder.Events()
	last := events[len(events)-1]
	assert.Equal(t, notifications.EventWorkflowFailed, last.Event)
	assert.Equal(t, "Session not ready for selection. Status: pending", last.Payload["error"])
}

func TestStartRequiresInputs(t *testing.T) {
	fx := newFixture(t)
	err := fx.flow.Start(context.Background(), "  ", "beach photographer")
	require.ErrorIs(t, err, creation.ErrMissingInput)
	assert.Equal(t, "location and prompt are required", fx.flow.State().Error)
	assert.Empty(t, fx.backend.Requests())
}
