package notifications_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
)

func TestNewServiceReturnsNoopWithoutSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg, nil)
	if err := svc.Publish(context.Background(), notifications.EventPostReady, notifications.Payload{"message": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "avatars ready",
			event:         notifications.EventAvatarsReady,
			payload:       notifications.Payload{"count": 4},
			expectTitle:   "Aura - Avatars Ready",
			expectMessage: "4 avatars ready. Choose one to continue.",
			expectTags:    "aura,creation,avatars",
		},
		{
			name:          "persona ready",
			event:         notifications.EventPersonaReady,
			payload:       notifications.Payload{"name": "Aiko"},
			expectTitle:   "Aura - Persona Ready",
			expectMessage: "Meet Aiko! Review and confirm to create.",
			expectTags:    "aura,creation,persona",
		},
		{
			name:          "post ready",
			event:         notifications.EventPostReady,
			payload:       notifications.Payload{"message": "Post ready!"},
			expectTitle:   "Aura - Post Ready",
			expectMessage: "Post ready!",
			expectTags:    "aura,post,ready",
		},
		{
			name:  "workflow failure",
			event: notifications.EventWorkflowFailed,
			payload: notifications.Payload{
				"workflow": "post",
				"error":    "quota exceeded",
			},
			expectTitle:    "Aura - Error",
			expectMessage:  "Error in post: quota exceeded",
			expectTags:     "aura,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg, nil)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.PostReady = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg, nil)
	suppressed := []notifications.Event{
		notifications.EventResearchProgress,
		notifications.EventCreationStarted,
		notifications.EventPostReady,
		notifications.EventVideoReady,
		notifications.EventWorkflowFailed,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"message": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic disabled", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg, nil)
	err := svc.Publish(context.Background(), notifications.EventPlanReady, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestConsoleWritesEveryEvent(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	cfg := config.Default()
	svc := notifications.NewService(&cfg, &buf)

	ctx := context.Background()
	_ = svc.Publish(ctx, notifications.EventResearchProgress, notifications.Payload{"message": "Researching: cafes", "resource": "orchestrator:s1"})
	_ = svc.Publish(ctx, notifications.EventWorkflowFailed, notifications.Payload{"workflow": "creation", "error": "Avatar generation failed"})

	out := buf.String()
	if !strings.Contains(out, "• Researching: cafes [orchestrator:s1]") {
		t.Fatalf("missing progress line in %q", out)
	}
	if !strings.Contains(out, "✗ Error in creation: Avatar generation failed") {
		t.Fatalf("missing error line in %q", out)
	}
}

func TestRecorderCounts(t *testing.T) {
	var rec notifications.Recorder
	_ = rec.Publish(context.Background(), notifications.EventPostReady, nil)
	_ = rec.Publish(context.Background(), notifications.EventPostReady, nil)
	if got := rec.Count(notifications.EventPostReady); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if len(rec.Events()) != 2 {
		t.Fatalf("expected 2 recorded events")
	}
}
