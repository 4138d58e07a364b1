package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/creation"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/orchestrator"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/posts"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// target is one followed workflow.
type target struct {
	name    string
	settled func() bool
	refresh func(context.Context) error
	close   func()
}

func (w *Watcher) attachCreation(ctx context.Context) (*target, error) {
	flow, err := w.rt.Creation()
	if err != nil {
		return nil, err
	}
	restored, err := flow.Restore(ctx)
	if err != nil || !restored {
		flow.Close()
		return nil, err
	}
	render := func(s creation.State) {
		w.out.print(creationLine(s))
		w.checkSettled()
	}
	off := flow.OnChange(render)
	render(flow.State())
	return &target{
		name:    string(stream.SessionResource(flow.State().SessionID)),
		settled: func() bool { return flow.State().Settled() },
		refresh: flow.Refresh,
		close: func() {
			off()
			flow.Close()
		},
	}, nil
}

func creationLine(s creation.State) line {
	l := line{
		resource: string(stream.SessionResource(s.SessionID)),
		status:   string(s.Step),
		message:  s.Message,
	}
	switch {
	case s.Failed:
		l.status = "failed"
		l.message = s.Error
		l.tone = toneFailed
	case s.Settled():
		l.tone = toneSettled
		if s.Step == creation.StepReview && s.Draft != nil {
			l.message = fmt.Sprintf("%s is ready for review", s.Draft.Name)
		}
	}
	return l
}

func (w *Watcher) attachOrchestrator(ctx context.Context) (*target, error) {
	flow, err := w.rt.Orchestrator()
	if err != nil {
		return nil, err
	}
	restored, err := flow.Restore(ctx)
	if err != nil || !restored {
		flow.Close()
		return nil, err
	}
	render := func(s orchestrator.State) {
		w.out.print(orchestratorLine(s))
		w.checkSettled()
	}
	off := flow.OnChange(render)
	render(flow.State())
	return &target{
		name:    string(stream.OrchestratorResource(flow.State().SessionID)),
		settled: func() bool { return flow.State().Settled() },
		refresh: flow.Refresh,
		close: func() {
			off()
			flow.Close()
		},
	}, nil
}

func orchestratorLine(s orchestrator.State) line {
	l := line{
		resource: string(stream.OrchestratorResource(s.SessionID)),
		status:   string(s.Phase),
		message:  s.Message,
	}
	if s.Phase == orchestrator.PhaseResearch && s.Progress.Total > 0 {
		l.message = fmt.Sprintf("%d/%d sub-tasks", s.Progress.Current, s.Progress.Total)
	}
	if s.Activity != "" {
		if l.message != "" {
			l.message += ", "
		}
		l.message += s.Activity
	}
	switch {
	case s.Failed():
		l.message = s.Error
		l.tone = toneFailed
	case s.Settled():
		l.tone = toneSettled
		if len(s.Questions) > 0 {
			l.message = s.Questions[0].Message
		}
	}
	return l
}

func (w *Watcher) attachPost(ctx context.Context, id string) (*target, error) {
	tracker, err := w.rt.PostTracker()
	if err != nil {
		return nil, err
	}
	render := func(s posts.State) {
		if s.Post.ID == "" {
			return
		}
		w.out.print(postLine(s))
		w.checkSettled()
	}
	off := tracker.OnChange(render)
	if err := tracker.Track(ctx, id); err != nil {
		off()
		tracker.Close()
		return nil, fmt.Errorf("track post %s: %w", id, err)
	}
	render(tracker.State())
	return &target{
		name:    string(stream.PostResource(id)),
		settled: func() bool { return tracker.State().Settled() },
		refresh: tracker.Refresh,
		close: func() {
			off()
			tracker.Close()
		},
	}, nil
}

func postLine(s posts.State) line {
	status := string(s.Post.Status)
	if s.Post.VideoStatus != "" && s.Post.Status == posts.StatusReady {
		status += " video:" + s.Post.VideoStatus
	}
	l := line{
		resource: string(stream.PostResource(s.Post.ID)),
		status:   status,
		message:  s.Message,
	}
	switch {
	case s.Post.Status.Failed():
		l.message = s.Post.Error
		l.tone = toneFailed
	case s.Settled():
		l.tone = toneSettled
		if n := len(s.Slides()); n > 0 {
			l.message = fmt.Sprintf("%d slides", n)
		}
	}
	return l
}

func (w *Watcher) attachFeed(ctx context.Context, influencerID string) (*target, error) {
	feed, err := w.rt.Feed()
	if err != nil {
		return nil, err
	}
	render := func(list []posts.State) {
		for _, s := range list {
			w.out.print(postLine(s))
		}
		w.checkSettled()
	}
	off := feed.OnChange(render)
	if err := feed.Open(ctx, influencerID); err != nil {
		off()
		feed.Close()
		return nil, fmt.Errorf("open feed %s: %w", influencerID, err)
	}
	render(feed.Posts())
	return &target{
		name: string(stream.InfluencerResource(influencerID)),
		settled: func() bool {
			for _, s := range feed.Posts() {
				if !s.Settled() {
					return false
				}
			}
			return true
		},
		refresh: feed.Reload,
		close: func() {
			off()
			feed.Close()
		},
	}, nil
}

func targetNames(targets []*target) string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.name)
	}
	return strings.Join(names, ", ")
}
