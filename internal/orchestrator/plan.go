package orchestrator

import (
	"slices"
	"strings"
)

// Draft is a local, unsubmitted edit of a task.
type Draft struct {
	Name    string   `json:"name" yaml:"name"`
	Queries []string `json:"queries" yaml:"queries"`
}

// PlanItem is a task as the user sees it: the server-confirmed task plus
// any local edit.
type PlanItem struct {
	Task `yaml:",inline"`
	// Draft is nil when the user has not edited the task.
	Draft *Draft `json:"draft,omitempty" yaml:"draft,omitempty"`
	// Removed marks a server task the user deleted locally.
	Removed bool `json:"removed,omitempty" yaml:"removed,omitempty"`
	// Local marks a task the user added that the server has never seen.
	Local bool `json:"local,omitempty" yaml:"local,omitempty"`
	// EditSeq is the plan sequence at which the local edit was made.
	EditSeq uint64 `json:"-" yaml:"-"`
}

// Edited reports whether the item carries local state.
func (p PlanItem) Edited() bool {
	return p.Draft != nil || p.Removed || p.Local
}

// Effective returns the task as it would be submitted.
func (p PlanItem) Effective() Task {
	t := p.Task.clone()
	if p.Draft != nil {
		t.Name = p.Draft.Name
		t.Queries = slices.Clone(p.Draft.Queries)
	}
	return t
}

func (p PlanItem) clone() PlanItem {
	p.Task = p.Task.clone()
	if p.Draft != nil {
		d := *p.Draft
		d.Queries = slices.Clone(d.Queries)
		p.Draft = &d
	}
	return p
}

// PlanPayload is a server view of the plan. Basis is the plan sequence the
// payload was requested at; edits made after Basis are newer than it.
type PlanPayload struct {
	Basis uint64
	Tasks []Task
}

// MergePlan reconciles local plan items with a server payload.
//
// Confirmed fields always follow the payload. Drafts and removals survive a
// payload that still contains their task. A task missing from the payload is
// dropped with its edit, unless the edit is newer than the payload's basis.
// Locally added tasks are kept until submitted.
func MergePlan(items []PlanItem, payload PlanPayload) []PlanItem {
	byID := make(map[string]PlanItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	out := make([]PlanItem, 0, len(payload.Tasks)+len(items))
	seen := make(map[string]bool, len(payload.Tasks))
	for _, task := range payload.Tasks {
		if task.ID == "" || seen[task.ID] {
			continue
		}
		seen[task.ID] = true
		next := PlanItem{Task: task.clone()}
		if prev, ok := byID[task.ID]; ok {
			next.Draft = prev.clone().Draft
			next.Removed = prev.Removed
			next.EditSeq = prev.EditSeq
			if next.Draft != nil && draftMatches(*next.Draft, task) {
				next.Draft = nil
			}
		}
		out = append(out, next)
	}

	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		switch {
		case item.Local:
			out = append(out, item.clone())
		case item.Edited() && payload.Basis < item.EditSeq:
			out = append(out, item.clone())
		}
	}
	return out
}

// draftMatches reports whether the server already holds the draft's values.
func draftMatches(d Draft, t Task) bool {
	return d.Name == t.Name && slices.Equal(d.Queries, t.Queries)
}

// EffectivePlan returns the tasks that would be submitted.
func EffectivePlan(items []PlanItem) []Task {
	out := make([]Task, 0, len(items))
	for _, item := range items {
		if item.Removed {
			continue
		}
		out = append(out, item.Effective())
	}
	return out
}

func cleanQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
