package stream

import (
	"fmt"
	"slices"
	"strings"
)

// ResourceID names a logical stream of events, "<kind>:<id>".
type ResourceID string

// Resource kinds published by the backend.
const (
	KindSession      = "session"
	KindPost         = "post"
	KindInfluencer   = "influencer"
	KindOrchestrator = "orchestrator"
	KindAgent        = "agent"
)

// NewResourceID joins kind and id.
func NewResourceID(kind, id string) ResourceID {
	return ResourceID(kind + ":" + id)
}

// SessionResource identifies a creation session's events.
func SessionResource(id string) ResourceID { return NewResourceID(KindSession, id) }

// PostResource identifies a single post's status events.
func PostResource(id string) ResourceID { return NewResourceID(KindPost, id) }

// InfluencerResource identifies the feed-wide post updates of an influencer.
func InfluencerResource(id string) ResourceID { return NewResourceID(KindInfluencer, id) }

// OrchestratorResource identifies an orchestrator session's events.
func OrchestratorResource(id string) ResourceID { return NewResourceID(KindOrchestrator, id) }

// AgentResource identifies research-agent progress events.
func AgentResource(id string) ResourceID { return NewResourceID(KindAgent, id) }

// ParseResourceID validates the "<kind>:<id>" form.
func ParseResourceID(raw string) (ResourceID, error) {
	raw = strings.TrimSpace(raw)
	kind, id, ok := strings.Cut(raw, ":")
	if !ok || kind == "" || id == "" {
		return "", fmt.Errorf("invalid resource id %q: want <kind>:<id>", raw)
	}
	if strings.Contains(raw, ",") {
		return "", fmt.Errorf("invalid resource id %q: must not contain commas", raw)
	}
	return ResourceID(raw), nil
}

// Kind returns the part before the first colon.
func (r ResourceID) Kind() string {
	kind, _, _ := strings.Cut(string(r), ":")
	return kind
}

// ID returns the part after the first colon.
func (r ResourceID) ID() string {
	_, id, _ := strings.Cut(string(r), ":")
	return id
}

func (r ResourceID) String() string { return string(r) }

// JoinResources renders ids as the comma-separated query value, sorted so the
// connection URL is stable for a given set.
func JoinResources(ids []ResourceID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}
