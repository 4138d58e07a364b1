package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/apiclient"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/retry"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

type logoutCounter struct{ calls atomic.Int32 }

func (l *logoutCounter) Logout(context.Context, string) error {
	l.calls.Add(1)
	return nil
}

func newClient(t *testing.T, url string, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(url, opts...)
	require.NoError(t, err)
	return c
}

func TestServerErrorRetriesWithDoublingDelay(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newClient(t, srv.URL,
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond}),
		apiclient.WithSleeper(sleeper.sleep),
	)

	err := c.Get(context.Background(), "/creation/abc", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apiclient.ErrServer)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.recorded())

	apiErr, ok := apiclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestPerCallRetryOverride(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newClient(t, srv.URL, apiclient.WithSleeper(sleeper.sleep))
	err := c.Do(context.Background(), "/x", apiclient.RequestOptions{RetryAttempts: 1}, nil)
	require.ErrorIs(t, err, apiclient.ErrServer)
	assert.EqualValues(t, 1, hits.Load())
	assert.Empty(t, sleeper.recorded())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, apiclient.ErrForbidden},
		{http.StatusNotFound, apiclient.ErrNotFound},
		{http.StatusUnprocessableEntity, apiclient.ErrValidation},
		{http.StatusBadRequest, apiclient.ErrHTTP},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"detail":"Session not found"}`))
			}))
			defer srv.Close()

			c := newClient(t, srv.URL, apiclient.WithSleeper(func(context.Context, time.Duration) error { return nil }))
			err := c.Get(context.Background(), "/creation/abc", nil)
			require.ErrorIs(t, err, tc.want)
			assert.EqualValues(t, 1, hits.Load())
			apiErr, _ := apiclient.AsError(err)
			assert.Equal(t, "Session not found", apiErr.UserMessage())
		})
	}
}

func TestValidationErrorCarriesFieldMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","location"],"msg":"field required","type":"missing"}]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	err := c.Post(context.Background(), "/creation/start", map[string]string{"prompt": "x"}, nil)
	apiErr, ok := apiclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, apiclient.KindValidation, apiErr.Kind)
	assert.Equal(t, map[string]string{"location": "field required"}, apiErr.Fields)
	assert.Equal(t, "location: field required", apiErr.UserMessage())
}

func TestRateLimitWaitsForRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sleeper := &sleepRecorder{}
	c := newClient(t, srv.URL,
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 3, BaseDelay: time.Second}),
		apiclient.WithSleeper(sleeper.sleep),
	)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Get(context.Background(), "/limited", &out))
	assert.True(t, out.OK)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.recorded())
}

func TestAttemptTimeoutIsClassifiedAndRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newClient(t, srv.URL,
		apiclient.WithTimeout(20*time.Millisecond),
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}),
		apiclient.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	err := c.Get(context.Background(), "/slow", nil)
	require.ErrorIs(t, err, apiclient.ErrTimeout)
	assert.EqualValues(t, 2, hits.Load())
}

func TestCallerCancellationIsAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	c := newClient(t, srv.URL, apiclient.WithTimeout(5*time.Second))
	err := c.Get(ctx, "/slow", nil)
	require.ErrorIs(t, err, apiclient.ErrAbort)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNetworkErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &sleepRecorder{}
	c := newClient(t, url,
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}),
		apiclient.WithSleeper(sleeper.sleep),
	)
	err := c.Get(context.Background(), "/", nil)
	require.ErrorIs(t, err, apiclient.ErrNetwork)
	assert.Len(t, sleeper.recorded(), 1)
}

func TestUnauthorizedClearsCredentialsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	logout := &logoutCounter{}
	c := newClient(t, srv.URL,
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}),
		apiclient.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		apiclient.WithRequestInterceptor(apiclient.AuthInterceptor(staticTokens("tok"))),
		apiclient.WithErrorInterceptor(apiclient.UnauthorizedInterceptor(logout, nil)),
	)
	err := c.Get(context.Background(), "/influencer/", nil)
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.EqualValues(t, 1, hits.Load())
	assert.EqualValues(t, 1, logout.calls.Load())
}

func TestUnauthorizedOnRetriedCallStillLogsOutOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	logout := &logoutCounter{}
	c := newClient(t, srv.URL,
		apiclient.WithRetryPolicy(retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}),
		apiclient.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		apiclient.WithErrorInterceptor(apiclient.UnauthorizedInterceptor(logout, nil)),
	)
	err := c.Get(context.Background(), "/postings/p1", nil)
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 1, logout.calls.Load())
}

func TestSkipAuthOmitsHeaderAndDoesNotLogout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	logout := &logoutCounter{}
	c := newClient(t, srv.URL,
		apiclient.WithRequestInterceptor(apiclient.AuthInterceptor(staticTokens("tok"))),
		apiclient.WithErrorInterceptor(apiclient.UnauthorizedInterceptor(logout, nil)),
	)
	err := c.Do(context.Background(), "/auth/google", apiclient.RequestOptions{Method: http.MethodPost, SkipAuth: true}, nil)
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.Zero(t, logout.calls.Load())
}

func TestRequestInterceptorsRunInOrderAndMayRewrite(t *testing.T) {
	var gotPath, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var order []string
	rewrite := func(ctx context.Context, req *apiclient.Request) (context.Context, error) {
		order = append(order, "rewrite")
		req.URL.Path = "/v2" + req.URL.Path
		return ctx, nil
	}
	second := func(ctx context.Context, req *apiclient.Request) (context.Context, error) {
		order = append(order, "second")
		return ctx, nil
	}
	c := newClient(t, srv.URL, apiclient.WithRequestInterceptor(
		apiclient.RequestIDInterceptor(func() string { return "rid-1" }), rewrite, second,
	))
	require.NoError(t, c.Delete(context.Background(), "/postings/p1", nil))
	assert.Equal(t, "/v2/postings/p1", gotPath)
	assert.Equal(t, "rid-1", gotID)
	assert.Equal(t, []string{"rewrite", "second"}, order)
}

func TestInterceptorErrorAbortsCall(t *testing.T) {
	boom := errors.New("no credential")
	c := newClient(t, "http://127.0.0.1:1", apiclient.WithRequestInterceptor(func(ctx context.Context, _ *apiclient.Request) (context.Context, error) {
		return ctx, boom
	}))
	err := c.Get(context.Background(), "/x", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, apiclient.KindHTTP, apiclient.KindOf(err))
}

func TestResponseBodyParsingByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"name":"Mia"}`))
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
		default:
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50})
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, apiclient.WithoutCache())
	ctx := context.Background()

	resp, err := c.Send(ctx, "/json", apiclient.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, apiclient.BodyJSON, resp.Kind)
	var person struct {
		Name string `json:"name"`
	}
	require.NoError(t, resp.Decode(&person))
	assert.Equal(t, "Mia", person.Name)

	resp, err = c.Send(ctx, "/text", apiclient.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, apiclient.BodyText, resp.Kind)
	assert.Equal(t, "hello", resp.Text())
	assert.Error(t, resp.Decode(&person))

	resp, err = c.Send(ctx, "/blob", apiclient.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, apiclient.BodyBlob, resp.Kind)
	var raw []byte
	require.NoError(t, resp.Decode(&raw))
	assert.Equal(t, []byte{0x89, 0x50}, raw)
}

func TestPostSendsJSONBodyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "9:16", r.URL.Query().Get("aspect_ratio"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Lisbon", body["location"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s1"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	var out struct {
		ID string `json:"id"`
	}
	err := c.Do(context.Background(), "/creation/start", apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"location": "Lisbon"},
		Query:  map[string][]string{"aspect_ratio": {"9:16"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "s1", out.ID)
}

func TestEnvelopeUnwrapsDataAndDetectsEmbeddedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/influencer/missing" {
			_, _ = w.Write([]byte(`{"error":"An error occurred.","code":404,"message":"Influencer doesn't exist."}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"i1"},"code":200,"message":"ok"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	type entity struct {
		ID string `json:"id"`
	}
	got, err := apiclient.DoEnvelope[entity](context.Background(), c, "/influencer/i1", apiclient.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)

	_, err = apiclient.DoEnvelope[entity](context.Background(), c, "/influencer/missing", apiclient.RequestOptions{})
	require.ErrorIs(t, err, apiclient.ErrNotFound)
	apiErr, _ := apiclient.AsError(err)
	assert.Equal(t, "Influencer doesn't exist.", apiErr.UserMessage())
}
