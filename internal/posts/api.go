package posts

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
)

const basePath = "/postings"

// API binds the posting routes. Every route answers with the {data, code,
// message} envelope.
type API struct {
	client *apiclient.Client
}

// NewAPI wraps client.
func NewAPI(client *apiclient.Client) *API {
	return &API{client: client}
}

// Create stores a pending post and starts generation in the background.
func (a *API) Create(ctx context.Context, req CreateRequest) (Post, error) {
	req.InfluencerID = strings.TrimSpace(req.InfluencerID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.InfluencerID == "" || req.Prompt == "" {
		return Post{}, ErrInvalidRequest
	}
	e, err := apiclient.DoEnvelope[entity](ctx, a.client, basePath+"/create", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   req,
	})
	if err != nil {
		return Post{}, err
	}
	a.client.InvalidatePrefix(listPath(req.InfluencerID))
	return e.post()
}

// Get fetches a post. Generation advances server side, so the read bypasses
// the cache.
func (a *API) Get(ctx context.Context, id string) (Post, error) {
	e, err := apiclient.DoEnvelope[entity](ctx, a.client, postPath(id), apiclient.RequestOptions{SkipCache: true})
	if err != nil {
		return Post{}, err
	}
	return e.post()
}

// List returns an influencer's posts, newest first. The result is cached
// until a mutation or feed event invalidates it.
func (a *API) List(ctx context.Context, influencerID string) ([]Post, error) {
	entities, err := apiclient.DoEnvelope[[]entity](ctx, a.client, listPath(influencerID), apiclient.RequestOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(entities))
	for _, e := range entities {
		p, err := e.post()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a post. A post that is already gone counts as deleted.
func (a *API) Delete(ctx context.Context, id, influencerID string) error {
	_, err := apiclient.DoEnvelope[any](ctx, a.client, postPath(id), apiclient.RequestOptions{Method: http.MethodDelete})
	a.client.InvalidatePrefix(postPath(id))
	if influencerID != "" {
		a.client.InvalidatePrefix(listPath(influencerID))
	} else {
		a.client.InvalidatePrefix(basePath + "/influencer/")
	}
	if errors.Is(err, apiclient.ErrNotFound) {
		return nil
	}
	return err
}

// GenerateVideos starts video generation for a ready four-slide post.
func (a *API) GenerateVideos(ctx context.Context, id string, opts VideoOptions) (VideoJob, error) {
	query := url.Values{}
	if opts.Duration > 0 {
		query.Set("duration", strconv.Itoa(opts.Duration))
	}
	if opts.AspectRatio != "" {
		query.Set("aspect_ratio", opts.AspectRatio)
	}
	job, err := apiclient.DoEnvelope[VideoJob](ctx, a.client, postPath(id)+"/generate-videos", apiclient.RequestOptions{
		Method: http.MethodPost,
		Query:  query,
	})
	if err != nil {
		return VideoJob{}, err
	}
	a.client.InvalidatePrefix(postPath(id))
	return job, nil
}

// ForgetList drops the cached post list of an influencer.
func (a *API) ForgetList(influencerID string) {
	a.client.InvalidatePrefix(listPath(influencerID))
}

func postPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}

func listPath(influencerID string) string {
	return basePath + "/influencer/" + url.PathEscape(influencerID)
}
