package creation

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
)

const basePath = "/creation"

// API binds the creation routes.
type API struct {
	client *apiclient.Client
}

// NewAPI wraps client.
func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

// ConfirmResult is the answer to a confirmation.
type ConfirmResult struct {
	Message    string `json:"message"`
	Influencer Entity `json:"influencer"`
}

// Start begins a session and kicks off avatar generation.
func (a *API) Start(ctx context.Context, location, prompt string) (Session, error) {
	var session Session
	body := map[string]string{"location": location, "prompt": prompt}
	if err := a.client.Post(ctx, basePath+"/start", body, &session); err != nil {
		return Session{}, err
	}
	a.client.InvalidatePrefix(basePath)
	return session, nil
}

// Get fetches a session. Session state changes server side without a client
// mutation, so the read bypasses the cache.
func (a *API) Get(ctx context.Context, id string) (Session, error) {
	var session Session
	err := a.client.Do(ctx, sessionPath(id), apiclient.RequestOptions{SkipCache: true}, &session)
	return session, err
}

// Active returns the caller's most recent in-progress session, if any.
func (a *API) Active(ctx context.Context) (Session, bool, error) {
	var payload struct {
		Session *Session `json:"session"`
	}
	if err := a.client.Do(ctx, basePath+"/", apiclient.RequestOptions{SkipCache: true}, &payload); err != nil {
		return Session{}, false, err
	}
	if payload.Session == nil {
		return Session{}, false, nil
	}
	return *payload.Session, true, nil
}

// SelectAvatar chooses an avatar and starts persona generation.
func (a *API) SelectAvatar(ctx context.Context, id, avatarURL string) (Session, error) {
	var session Session
	body := map[string]string{"avatar_url": avatarURL}
	if err := a.client.Post(ctx, sessionPath(id)+"/select", body, &session); err != nil {
		return Session{}, err
	}
	a.client.InvalidatePrefix(basePath)
	return session, nil
}

// Confirm turns the reviewed persona into an influencer.
func (a *API) Confirm(ctx context.Context, id string, edits Edits) (ConfirmResult, error) {
	var result ConfirmResult
	var body any
	if !edits.Empty() {
		body = edits
	}
	if err := a.client.Post(ctx, sessionPath(id)+"/confirm", body, &result); err != nil {
		return ConfirmResult{}, err
	}
	a.client.InvalidatePrefix(basePath)
	a.client.InvalidatePrefix("/entities")
	return result, nil
}

// Delete discards a session. A session that is already gone counts as
// deleted.
func (a *API) Delete(ctx context.Context, id string) error {
	err := a.client.Do(ctx, sessionPath(id), apiclient.RequestOptions{Method: http.MethodDelete}, nil)
	a.client.InvalidatePrefix(basePath)
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil
	}
	return err
}

func sessionPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}
