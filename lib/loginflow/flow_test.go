package loginflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"oasys-backend/lib/attendance"
	"oasys-backend/lib/statestore"
	"oasys-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeGateway emulates the three gateway endpoints with counters so
// tests can pin exactly how many calls a flow makes.
type fakeGateway struct {
	mu           sync.Mutex
	startCalls   int
	refreshCalls int
	submitCalls  int
	lastUserId   string

	rejectSubmissions bool
	attendanceHtml    string
}

func (g *fakeGateway) captchaBytes() []byte {
	// differs per issuance so replacement is observable
	return []byte(fmt.Sprintf("png-%d", g.startCalls+g.refreshCalls))
}

func (g *fakeGateway) serveCaptcha(w http.ResponseWriter, r *http.Request) {
	g.lastUserId = r.PostFormValue("user_id")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"captcha_image": base64.StdEncoding.EncodeToString(g.captchaBytes()),
	})
}

func (g *fakeGateway) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/start_login/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.startCalls++
		g.serveCaptcha(w, r)
	})
	mux.HandleFunc("/refresh_captcha/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.refreshCalls++
		g.serveCaptcha(w, r)
	})
	mux.HandleFunc("/submit_login/", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.submitCalls++
		g.lastUserId = r.PostFormValue("user_id")
		if g.rejectSubmissions {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "<h3>Login failed</h3>")
			return
		}
		fmt.Fprint(w, g.attendanceHtml)
	})
	return httptest.NewServer(mux)
}

func newTestFlow(t *testing.T, gatewayUrl string) *Flow {
	store, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	flow, err := NewFlow(context.Background(), Options{
		BaseUrl: gatewayUrl,
		Store:   store,
	})
	if err != nil {
		t.Fatal(err)
	}
	return flow
}

func TestFlowHappyPath(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:lib/loginflow")
	defer cleanup()
	ctx := context.Background()

	gateway := &fakeGateway{
		attendanceHtml: `<table>
<tr><th>h</th></tr>
<tr><td>Data Structures</td><td>CS201</td><td>40</td><td>35</td><td>Can bunk 6 hrs</td></tr>
</table>`,
	}
	server := gateway.server()
	defer server.Close()

	flow := newTestFlow(t, server.URL)
	require.Equal(t, AwaitingCaptcha, flow.State())

	err := flow.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, AwaitingCredentials, flow.State())
	require.Equal(t, []byte("png-1"), flow.CaptchaImage())
	require.Equal(t, flow.SessionId(), gateway.lastUserId)

	html, err := flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
	require.NoError(t, err)
	require.Equal(t, TerminatedSuccess, flow.State())

	snapshot, err := attendance.Extract(html)
	require.NoError(t, err)
	require.Len(t, snapshot.Courses, 1)
	require.Equal(t, 87.5, snapshot.Courses[0].Percentage)

	require.Equal(t, 1, gateway.startCalls)
	require.Equal(t, 1, gateway.submitCalls)
}

func TestSubmitPersistsResult(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{attendanceHtml: "<table><tr><th>h</th></tr></table>"}
	server := gateway.server()
	defer server.Close()

	store, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	flow, err := NewFlow(ctx, Options{BaseUrl: server.URL, Store: store})
	require.NoError(t, err)
	require.NoError(t, flow.Start(ctx))

	_, err = flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
	require.NoError(t, err)

	{
		html, ok, err := store.GetSession(ctx, statestore.KeyAttendanceHtml)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, gateway.attendanceHtml, html)
	}
	{
		netid, ok, err := store.GetSession(ctx, statestore.KeyNetid)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "ab1234", netid)
	}
}

func TestSubmitValidatesBeforeNetwork(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{}
	server := gateway.server()
	defer server.Close()

	flow := newTestFlow(t, server.URL)
	require.NoError(t, flow.Start(ctx))

	for _, fields := range [][3]string{
		{"", "hunter2", "x7k2p"},
		{"ab1234", "", "x7k2p"},
		{"ab1234", "hunter2", ""},
		{"", "", ""},
	} {
		_, err := flow.Submit(ctx, fields[0], fields[1], fields[2])
		require.ErrorIs(t, err, ErrMissingFields)
	}

	// nothing hit the wire, and no fresh captcha got issued
	require.Equal(t, 0, gateway.submitCalls)
	require.Equal(t, 1, gateway.startCalls)
	require.Equal(t, AwaitingCredentials, flow.State())
}

func TestRejectedSubmitReissuesOneCaptcha(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{rejectSubmissions: true}
	server := gateway.server()
	defer server.Close()

	flow := newTestFlow(t, server.URL)
	require.NoError(t, flow.Start(ctx))
	firstImage := flow.CaptchaImage()

	_, err := flow.Submit(ctx, "ab1234", "wrong", "x7k2p")
	require.ErrorIs(t, err, ErrLoginRejected)

	// exactly one replacement challenge, transcription wiped
	require.Equal(t, 2, gateway.startCalls)
	require.Equal(t, 1, gateway.submitCalls)
	require.Equal(t, "", flow.CaptchaText())
	require.NotEqual(t, firstImage, flow.CaptchaImage())
	require.Equal(t, AwaitingCredentials, flow.State())

	// the flow is usable again without manual intervention
	gateway.rejectSubmissions = false
	gateway.attendanceHtml = "<table><tr><th>h</th></tr></table>"
	_, err = flow.Submit(ctx, "ab1234", "hunter2", "n3wtxt")
	require.NoError(t, err)
	require.Equal(t, TerminatedSuccess, flow.State())
}

func TestSubmitAgainstUnreachableGateway(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{}
	server := gateway.server()
	url := server.URL
	server.Close()

	flow := newTestFlow(t, url)

	err := flow.Start(ctx)
	require.ErrorIs(t, err, ErrCaptchaFetch)
	require.Nil(t, flow.CaptchaImage())

	_, err = flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, TerminatedFailure, flow.State())
}

func TestCaptchaRequestsAreSingleSlot(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/start_login/", func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		json.NewEncoder(w).Encode(map[string]string{
			"captcha_image": base64.StdEncoding.EncodeToString([]byte("png")),
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	flow := newTestFlow(t, server.URL)

	done := make(chan error)
	go func() {
		done <- flow.Start(ctx)
	}()
	<-entered

	err := flow.Start(ctx)
	require.ErrorIs(t, err, ErrRequestInFlight)
	err = flow.RefreshCaptcha(ctx)
	require.ErrorIs(t, err, ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, []byte("png"), flow.CaptchaImage())
}

func TestSubmitRequestsAreSingleSlot(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/start_login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"captcha_image": base64.StdEncoding.EncodeToString([]byte("png")),
		})
	})
	mux.HandleFunc("/submit_login/", func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		fmt.Fprint(w, "<table><tr><th>h</th></tr></table>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	flow := newTestFlow(t, server.URL)
	require.NoError(t, flow.Start(ctx))

	done := make(chan error)
	go func() {
		_, err := flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
		done <- err
	}()
	<-entered

	_, err := flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
	require.ErrorIs(t, err, ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, TerminatedSuccess, flow.State())
}

// a broken local disk must not cost the already-fetched page
func TestSubmitToleratesStorageFailure(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{attendanceHtml: "<table><tr><th>h</th></tr></table>"}
	server := gateway.server()
	defer server.Close()

	store, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}

	flow, err := NewFlow(ctx, Options{BaseUrl: server.URL, Store: store})
	require.NoError(t, err)
	require.NoError(t, flow.Start(ctx))

	require.NoError(t, store.Close())

	html, err := flow.Submit(ctx, "ab1234", "hunter2", "x7k2p")
	require.NoError(t, err)
	require.Equal(t, gateway.attendanceHtml, html)
	require.Equal(t, TerminatedSuccess, flow.State())
}

func TestRefreshReplacesChallenge(t *testing.T) {
	ctx := context.Background()

	gateway := &fakeGateway{}
	server := gateway.server()
	defer server.Close()

	flow := newTestFlow(t, server.URL)
	require.NoError(t, flow.Start(ctx))
	first := flow.CaptchaImage()

	require.NoError(t, flow.RefreshCaptcha(ctx))
	require.Equal(t, 1, gateway.startCalls)
	require.Equal(t, 1, gateway.refreshCalls)
	require.NotEqual(t, first, flow.CaptchaImage())
	require.Equal(t, flow.SessionId(), gateway.lastUserId)
}

func TestSessionIdSurvivesFlowRestart(t *testing.T) {
	ctx := context.Background()

	store, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	first, err := NewFlow(ctx, Options{BaseUrl: "http://localhost:0", Store: store})
	require.NoError(t, err)
	second, err := NewFlow(ctx, Options{BaseUrl: "http://localhost:0", Store: store})
	require.NoError(t, err)

	require.Equal(t, first.SessionId(), second.SessionId())
}
