package preflight

import (
	"context"
	"time"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	// Warn marks a failure that does not block use, such as a missing login.
	Warn   bool   `json:"warn,omitempty" yaml:"warn,omitempty"`
	Detail string `json:"detail" yaml:"detail"`
}

// Inputs are the services RunAll checks. Nil services skip their checks.
type Inputs struct {
	Config *config.Config
	Client *apiclient.Client
	Tokens TokenReader
	Now    func() time.Time
}

// RunAll executes every applicable check in display order.
func RunAll(ctx context.Context, in Inputs) []Result {
	if in.Config == nil {
		return nil
	}
	now := in.Now
	if now == nil {
		now = time.Now
	}

	results := []Result{
		CheckConfig(in.Config),
		CheckDirectoryAccess("State directory", in.Config.State.Dir),
	}
	if in.Client != nil {
		results = append(results, CheckBackend(ctx, in.Client))
	}
	if in.Tokens != nil {
		results = append(results, CheckCredential(ctx, in.Tokens, now()))
	}
	return results
}

// Failed reports whether any result is a hard failure.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Warn {
			return true
		}
	}
	return false
}
