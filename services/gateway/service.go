// Package gateway fronts the SRM student portal with the three
// form-encoded endpoints the client core speaks: start_login,
// refresh_captcha and submit_login. It owns one upstream portal
// session per user id, kept only in memory and dropped after fifteen
// minutes of inactivity.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"oasys-backend/lib/scrapers/srmportal"
	"oasys-backend/lib/telemetry"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("services/gateway")

var ErrSessionInvalid = fmt.Errorf("session invalid or expired")

type Options struct {
	// base url of the student portal, e.g. https://sp.srmist.edu.in
	PortalBaseUrl string
	// defaults to 15 minutes when zero
	SessionTtl time.Duration
}

type Service struct {
	sessions *expirable.LRU[string, *srmportal.Client]
	options  Options
}

func NewService(options Options) *Service {
	ttl := options.SessionTtl
	if ttl == 0 {
		ttl = time.Minute * 15
	}
	return &Service{
		sessions: expirable.NewLRU[string, *srmportal.Client](2048, nil, ttl),
		options:  options,
	}
}

// StartLogin opens a fresh portal session for the user, replacing any
// existing one, and returns the base64 png of its captcha challenge.
func (s *Service) StartLogin(ctx context.Context, userId string) (string, error) {
	ctx, span := tracer.Start(ctx, "StartLogin")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userId))

	client, err := srmportal.NewClient(srmportal.ClientOptions{
		BaseUrl: s.options.PortalBaseUrl,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize portal client")
		return "", err
	}

	err = client.PrimeLogin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prime portal session")
		return "", err
	}
	captcha, err := client.FetchCaptcha(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch captcha")
		return "", err
	}

	s.sessions.Add(userId, client)
	slog.InfoContext(ctx, "new portal session", "user_id", userId)

	return base64.StdEncoding.EncodeToString(captcha), nil
}

// RefreshCaptcha issues a new challenge on the user's existing portal
// session, invalidating the previous one upstream.
func (s *Service) RefreshCaptcha(ctx context.Context, userId string) (string, error) {
	ctx, span := tracer.Start(ctx, "RefreshCaptcha")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userId))

	client, ok := s.sessions.Get(userId)
	if !ok {
		span.SetStatus(codes.Error, ErrSessionInvalid.Error())
		return "", ErrSessionInvalid
	}

	captcha, err := client.FetchCaptcha(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch captcha")
		return "", err
	}
	return base64.StdEncoding.EncodeToString(captcha), nil
}

// SubmitLogin validates the captcha and credentials against the portal
// and, on success, returns the post-processed attendance page.
func (s *Service) SubmitLogin(ctx context.Context, userId, netid, password, captcha string) (string, error) {
	ctx, span := tracer.Start(ctx, "SubmitLogin")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userId))

	client, ok := s.sessions.Get(userId)
	if !ok {
		span.SetStatus(codes.Error, ErrSessionInvalid.Error())
		return "", ErrSessionInvalid
	}

	err := client.SubmitCredentials(ctx, netid, password, captcha)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "portal rejected the submission")
		return "", err
	}

	html, err := client.FetchAttendancePage(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch attendance page")
		return "", err
	}

	return PostprocessAttendance(html)
}
