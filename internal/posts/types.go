package posts

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// Status is the server-owned generation status of a post.
type Status string

const (
	StatusPending          Status = "pending"
	StatusGeneratingStory  Status = "generating_story"
	StatusGeneratingImages Status = "generating_images"
	StatusReady            Status = "ready"
	StatusGeneratingVideo  Status = "generating_video"
	StatusVideoReady       Status = "video_ready"
	StatusPublished        Status = "published"
	StatusFailed           Status = "failed"
	StatusVideoFailed      Status = "video_failed"
)

// Generating reports whether the backend is still working on the post.
func (s Status) Generating() bool {
	switch s {
	case StatusPending, StatusGeneratingStory, StatusGeneratingImages, StatusGeneratingVideo:
		return true
	}
	return false
}

// Settled reports whether the post will not change without a client action.
func (s Status) Settled() bool {
	switch s {
	case StatusReady, StatusVideoReady, StatusPublished, StatusFailed, StatusVideoFailed:
		return true
	}
	return false
}

// Failed reports whether s is a failure status.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusVideoFailed
}

// ReferenceImage is an extra image the generator should incorporate.
type ReferenceImage struct {
	URL         string `json:"url" yaml:"url"`
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CreateRequest starts AI generation of a post.
type CreateRequest struct {
	InfluencerID      string           `json:"influencer_id"`
	Prompt            string           `json:"prompt"`
	Platform          string           `json:"platform,omitempty"`
	ReferenceImageURL string           `json:"reference_image_url,omitempty"`
	ReferenceImages   []ReferenceImage `json:"reference_images,omitempty"`
}

// VideoOptions tunes video generation. Zero values use the server defaults.
type VideoOptions struct {
	Duration    int
	AspectRatio string
}

// VideoJob acknowledges a video generation request.
type VideoJob struct {
	PostID      string `json:"post_id"`
	VideoStatus string `json:"videoStatus"`
}

// StorySlide is one slide of the generated story before rendering.
type StorySlide struct {
	Caption     string `json:"caption" yaml:"caption"`
	VisualScene string `json:"visual_scene" yaml:"visual_scene"`
}

// Story is the generated caption and slide script.
type Story struct {
	Caption string       `json:"caption" yaml:"caption"`
	Slides  []StorySlide `json:"slides" yaml:"slides"`
}

// Slide is one rendered slide with its optional video.
type Slide struct {
	Index    int    `json:"index" yaml:"index"`
	ImageURL string `json:"image_url" yaml:"image_url"`
	Caption  string `json:"caption,omitempty" yaml:"caption,omitempty"`
	VideoURL string `json:"video_url,omitempty" yaml:"video_url,omitempty"`
}

// Post is the client view of a posting entity.
type Post struct {
	ID                string              `json:"id" yaml:"id"`
	InfluencerID      string              `json:"influencer_id" yaml:"influencer_id"`
	Status            Status              `json:"status" yaml:"status"`
	Content           string              `json:"content,omitempty" yaml:"content,omitempty"`
	Prompt            string              `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Platform          string              `json:"platform,omitempty" yaml:"platform,omitempty"`
	ReferenceImageURL string              `json:"reference_image_url,omitempty" yaml:"reference_image_url,omitempty"`
	Story             *Story              `json:"generated_content,omitempty" yaml:"generated_content,omitempty"`
	ImageURLs         []string            `json:"image_urls,omitempty" yaml:"image_urls,omitempty"`
	ImageSlides       []stream.ImageSlide `json:"image_slides,omitempty" yaml:"image_slides,omitempty"`
	GridImageURL      string              `json:"grid_image_url,omitempty" yaml:"grid_image_url,omitempty"`
	Videos            []stream.VideoClip  `json:"videoUrls,omitempty" yaml:"videos,omitempty"`
	VideoStatus       string              `json:"videoStatus,omitempty" yaml:"video_status,omitempty"`
	Error             string              `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt         string              `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Slides derives the rendered slides of p.
func (p Post) Slides() []Slide {
	return deriveSlides(p.ImageSlides, p.ImageURLs, p.Videos)
}

// deriveSlides prefers captioned image_slides and falls back to bare
// image_urls. Video clips attach by slide index.
func deriveSlides(slides []stream.ImageSlide, urls []string, videos []stream.VideoClip) []Slide {
	var out []Slide
	switch {
	case len(slides) > 0:
		out = make([]Slide, len(slides))
		for i, s := range slides {
			out[i] = Slide{Index: i, ImageURL: s.ImageURL, Caption: s.Caption}
		}
	case len(urls) > 0:
		out = make([]Slide, len(urls))
		for i, u := range urls {
			out[i] = Slide{Index: i, ImageURL: u}
		}
	}
	for _, v := range videos {
		if v.SlideIndex >= 0 && v.SlideIndex < len(out) {
			out[v.SlideIndex].VideoURL = v.VideoURL
		}
	}
	return out
}

func (p Post) clone() Post {
	p.ImageURLs = slices.Clone(p.ImageURLs)
	p.ImageSlides = slices.Clone(p.ImageSlides)
	p.Videos = slices.Clone(p.Videos)
	if p.Story != nil {
		story := *p.Story
		story.Slides = slices.Clone(story.Slides)
		p.Story = &story
	}
	return p
}

// entity is the stored representation returned by the posting routes.
type entity struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
}

func (e entity) post() (Post, error) {
	var p Post
	if len(e.Data) > 0 && string(e.Data) != "null" {
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return Post{}, fmt.Errorf("decode posting %s: %w", e.ID, err)
		}
	}
	p.ID = e.ID
	if p.CreatedAt == "" {
		p.CreatedAt = e.CreatedAt
	}
	return p, nil
}
