package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
)

const backendTimeout = 5 * time.Second

// TokenReader exposes the stored credential without expiry filtering.
type TokenReader interface {
	RawToken(ctx context.Context) (string, error)
}

// CheckConfig validates the loaded configuration.
func CheckConfig(cfg *config.Config) Result {
	const name = "Configuration"
	if err := cfg.Validate(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "valid"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckBackend probes the API root with a single unauthenticated attempt.
// Any HTTP answer counts as reachable.
func CheckBackend(ctx context.Context, client *apiclient.Client) Result {
	const name = "Backend"
	resp, err := client.Send(ctx, "/", apiclient.RequestOptions{
		SkipAuth:      true,
		SkipCache:     true,
		RetryAttempts: 1,
		Timeout:       backendTimeout,
	})
	if err == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (HTTP %d)", client.BaseURL(), resp.Status)}
	}
	apiErr, ok := apiclient.AsError(err)
	if !ok {
		return Result{Name: name, Detail: err.Error()}
	}
	switch apiErr.Kind {
	case apiclient.KindNetwork:
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable", client.BaseURL())}
	case apiclient.KindTimeout:
		return Result{Name: name, Detail: fmt.Sprintf("%s timed out after %s", client.BaseURL(), backendTimeout)}
	case apiclient.KindAbort:
		return Result{Name: name, Detail: "check cancelled"}
	case apiclient.KindServer:
		return Result{Name: name, Detail: fmt.Sprintf("%s answered HTTP %d", client.BaseURL(), apiErr.Status)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (HTTP %d)", client.BaseURL(), apiErr.Status)}
	}
}

// CheckCredential reports whether a bearer token is stored and unexpired.
// A missing login is a warning; an expired one is a failure.
func CheckCredential(ctx context.Context, tokens TokenReader, now time.Time) Result {
	const name = "Credential"
	token, err := tokens.RawToken(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("read credential: %v", err)}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Name: name, Warn: true, Detail: "not logged in (run `aura login`)"}
	}
	claims, err := credentials.Inspect(token)
	if err != nil {
		return Result{Name: name, Passed: true, Detail: "opaque token (expiry unknown)"}
	}
	if claims.Expired(now) {
		return Result{Name: name, Detail: fmt.Sprintf("expired %s", claims.ExpiresAt.Format(time.RFC3339))}
	}
	if !claims.HasExpiry() {
		return Result{Name: name, Passed: true, Detail: "valid (no expiry)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("valid until %s", claims.ExpiresAt.Format(time.RFC3339))}
}
