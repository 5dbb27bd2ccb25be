// Package loginflow drives the captcha-gated login exchange against
// the gateway: captcha issuance, refresh and credential submission,
// with the retry-on-failure loop the portal's single-use captchas
// force. One Flow corresponds to one session id and one server-side
// login attempt at a time.
package loginflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"oasys-backend/lib/sessionid"
	"oasys-backend/lib/statestore"
	"oasys-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

var (
	// local validation failure, the network is never contacted
	ErrMissingFields = fmt.Errorf("netid, password and captcha are all required")
	// a request of the same kind is already outstanding
	ErrRequestInFlight = fmt.Errorf("request already in flight")
	// captcha issuance or refresh failed
	ErrCaptchaFetch = fmt.Errorf("failed to fetch captcha")
	// the gateway rejected the submission. the detailed reason is
	// deliberately not parsed out of the response body
	ErrLoginRejected = fmt.Errorf("login failed, check credentials or captcha")
	// transport-level failure
	ErrNetwork = fmt.Errorf("network error")
)

type State int

const (
	AwaitingCaptcha State = iota
	AwaitingCredentials
	TerminatedSuccess
	TerminatedFailure
)

type Flow struct {
	http      *resty.Client
	store     statestore.Store
	sessionId string

	mu           sync.Mutex
	state        State
	captchaImage []byte
	captchaText  string

	// single-slot in-flight guards, one per request kind
	captchaBusy atomic.Bool
	submitBusy  atomic.Bool
}

type Options struct {
	// base url of the gateway
	BaseUrl string
	Store   statestore.Store
}

func NewFlow(ctx context.Context, opts Options) (*Flow, error) {
	id, err := sessionid.GetOrCreate(ctx, opts.Store)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "loginflow/http")

	return &Flow{
		http:      client,
		store:     opts.Store,
		sessionId: id,
		state:     AwaitingCaptcha,
	}, nil
}

func (f *Flow) SessionId() string {
	return f.sessionId
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CaptchaImage returns the png bytes of the challenge currently held,
// or nil when issuance failed and the display should fall back to a
// placeholder.
func (f *Flow) CaptchaImage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captchaImage
}

// CaptchaText returns the transcription entered for the current
// challenge. It is cleared whenever a new challenge is issued.
func (f *Flow) CaptchaText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captchaText
}

type captchaResponse struct {
	CaptchaImage string `json:"captcha_image"`
}

// issueCaptcha performs one captcha call against the given endpoint.
// Concurrent refreshes are allowed to race; the last response to
// arrive wins the image slot.
func (f *Flow) issueCaptcha(ctx context.Context, path string) error {
	if !f.captchaBusy.CompareAndSwap(false, true) {
		return ErrRequestInFlight
	}
	defer f.captchaBusy.Store(false)

	// the previous transcription belongs to the invalidated challenge
	f.mu.Lock()
	f.captchaText = ""
	f.mu.Unlock()

	res, err := f.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"user_id": f.sessionId}).
		Post(path)
	if err != nil {
		f.clearCaptcha()
		return fmt.Errorf("%w: %w", ErrCaptchaFetch, err)
	}
	if res.IsError() {
		f.clearCaptcha()
		return fmt.Errorf("%w: gateway returned status %d", ErrCaptchaFetch, res.StatusCode())
	}

	var body captchaResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		f.clearCaptcha()
		return fmt.Errorf("%w: %w", ErrCaptchaFetch, err)
	}
	image, err := base64.StdEncoding.DecodeString(body.CaptchaImage)
	if err != nil {
		f.clearCaptcha()
		return fmt.Errorf("%w: %w", ErrCaptchaFetch, err)
	}

	f.mu.Lock()
	f.captchaImage = image
	f.state = AwaitingCredentials
	f.mu.Unlock()
	return nil
}

func (f *Flow) clearCaptcha() {
	f.mu.Lock()
	f.captchaImage = nil
	f.mu.Unlock()
}

// Start requests a captcha challenge for this flow's session id.
// Repeating the call is how refresh is implemented server-side, so
// Start is idempotent per session.
func (f *Flow) Start(ctx context.Context) error {
	return f.issueCaptcha(ctx, "/start_login/")
}

// RefreshCaptcha swaps the current challenge for a new one on the
// existing login attempt.
func (f *Flow) RefreshCaptcha(ctx context.Context) error {
	return f.issueCaptcha(ctx, "/refresh_captcha/")
}

// Submit sends the credentials and captcha transcription. On success
// it returns the raw attendance page html (the sole input of the
// extraction engine) and persists it, along with the netid, to the
// session scope of the store. Persistence is best-effort: a storage
// failure is logged but never costs the already-fetched page.
//
// Any failure terminates the attempt and automatically issues exactly
// one fresh captcha, since a challenge is single-use and tied to the
// attempt that consumed it. The submission itself is never retried
// automatically.
func (f *Flow) Submit(ctx context.Context, netid, password, captchaText string) (string, error) {
	if netid == "" || password == "" || captchaText == "" {
		return "", ErrMissingFields
	}

	if !f.submitBusy.CompareAndSwap(false, true) {
		return "", ErrRequestInFlight
	}

	f.mu.Lock()
	f.captchaText = captchaText
	f.mu.Unlock()

	res, err := f.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"user_id":  f.sessionId,
			"netid":    netid,
			"password": password,
			"captcha":  captchaText,
		}).
		Post("/submit_login/")
	if err != nil {
		f.terminate(TerminatedFailure)
		f.submitBusy.Store(false)
		f.reissueAfterFailure(ctx)
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if res.IsError() {
		f.terminate(TerminatedFailure)
		f.submitBusy.Store(false)
		f.reissueAfterFailure(ctx)
		return "", ErrLoginRejected
	}
	f.submitBusy.Store(false)

	html := res.String()
	f.terminate(TerminatedSuccess)

	err = f.store.SetSession(ctx, statestore.KeyAttendanceHtml, html)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist attendance page", "err", err)
	}
	err = f.store.SetSession(ctx, statestore.KeyNetid, netid)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist netid", "err", err)
	}
	return html, nil
}

func (f *Flow) terminate(state State) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

// reissueAfterFailure loops the protocol back to captcha issuance.
// The issuance error, if any, is intentionally swallowed: the caller
// is already handling the submission failure and the captcha display
// has fallen back to its placeholder state.
func (f *Flow) reissueAfterFailure(ctx context.Context) {
	_ = f.Start(ctx)
}
