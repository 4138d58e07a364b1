package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
)

const basePath = "/orchestrator"

// API binds the orchestrator routes.
type API struct {
	client *apiclient.Client
}

// NewAPI wraps client.
func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

// StartRequest begins a session. SessionID is chosen by the client so it can
// subscribe before the first event is published.
type StartRequest struct {
	InfluencerID string `json:"influencer_id"`
	Query        string `json:"query"`
	PostTypeHint string `json:"post_type_hint,omitempty"`
	SessionID    string `json:"session_id"`
}

// RetryResult is the synchronous outcome of a sub-task retry.
type RetryResult struct {
	Message    string `json:"message"`
	WebCount   int    `json:"web_count"`
	ImageCount int    `json:"image_count"`
}

type planTask struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Queries []string `json:"queries"`
}

// Start creates the session and kicks off planning.
func (a *API) Start(ctx context.Context, req StartRequest) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := a.client.Post(ctx, basePath+"/start", req, &resp); err != nil {
		return "", err
	}
	a.client.InvalidatePrefix(sessionPath(req.SessionID))
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp.SessionID, nil
}

// Get fetches a session, bypassing the cache.
func (a *API) Get(ctx context.Context, id string) (Session, error) {
	var session Session
	err := a.client.Do(ctx, sessionPath(id), apiclient.RequestOptions{SkipCache: true}, &session)
	return session, err
}

// SubmitPlan replaces the research plan and starts research.
func (a *API) SubmitPlan(ctx context.Context, id string, tasks []Task) error {
	plan := make([]planTask, 0, len(tasks))
	for _, t := range tasks {
		queries := t.Queries
		if queries == nil {
			queries = []string{}
		}
		plan = append(plan, planTask{ID: t.ID, Name: t.Name, Queries: queries})
	}
	body := map[string]any{"research_plan": plan}
	err := a.client.Do(ctx, sessionPath(id)+"/plan", apiclient.RequestOptions{Method: http.MethodPatch, Body: body}, nil)
	a.client.InvalidatePrefix(sessionPath(id))
	return err
}

// SubmitSelections stores the curated items and starts generation.
func (a *API) SubmitSelections(ctx context.Context, id string, sel Selections) error {
	body := sel.clone()
	if body.WebItemIDs == nil {
		body.WebItemIDs = []string{}
	}
	if body.ImageIDs == nil {
		body.ImageIDs = []string{}
	}
	err := a.client.Post(ctx, sessionPath(id)+"/selections", body, nil)
	a.client.InvalidatePrefix(sessionPath(id))
	return err
}

// RetrySubTask reruns research for one sub-task, with customQuery when set
// or a broadened query otherwise.
func (a *API) RetrySubTask(ctx context.Context, id, subTaskID, customQuery string) (RetryResult, error) {
	var result RetryResult
	body := map[string]any{}
	if customQuery != "" {
		body["custom_query"] = customQuery
	}
	err := a.client.Post(ctx, sessionPath(id)+"/retry-subtask/"+url.PathEscape(subTaskID), body, &result)
	a.client.InvalidatePrefix(sessionPath(id))
	return result, err
}

// Delete resets a session. A missing session counts as deleted.
func (a *API) Delete(ctx context.Context, id string) error {
	err := a.client.Do(ctx, sessionPath(id), apiclient.RequestOptions{Method: http.MethodDelete}, nil)
	a.client.InvalidatePrefix(sessionPath(id))
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil
	}
	return err
}

func sessionPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}
