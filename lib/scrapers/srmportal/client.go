// Package srmportal drives the SRM student portal: cookie priming,
// captcha retrieval, the CSRF-salted credential form and the
// attendance report page. One client holds one upstream portal
// session through its cookie jar.
package srmportal

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"oasys-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("scrapers/srmportal")

var ErrLoginFailed = fmt.Errorf("Failed to login to the student portal.")

const (
	loginPath      = "/srmiststudentportal/students/loginManager/youLogin.jsp"
	captchaPath    = "/srmiststudentportal/captchas"
	attendancePath = "/srmiststudentportal/students/report/studentAttendanceDetails.jsp"
)

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	// csrf salt scraped from the most recent login page fetch
	csrfSalt string
}

type ClientOptions struct {
	BaseUrl string
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/srmportal/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return c, nil
}

// PrimeLogin fetches the login page once so the portal hands out the
// cookies the rest of the exchange is keyed on.
func (c *Client) PrimeLogin(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:PrimeLogin")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "login page returned an error status")
		return fmt.Errorf("login page returned status %d", res.StatusCode())
	}
	return nil
}

// FetchCaptcha returns the raw PNG bytes of a fresh captcha challenge.
// Every call invalidates the previous challenge upstream.
func (c *Client) FetchCaptcha(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:FetchCaptcha")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(captchaPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch captcha")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "captcha endpoint returned an error status")
		return nil, fmt.Errorf("captcha endpoint returned status %d", res.StatusCode())
	}
	return res.Body(), nil
}

// hiddenLoginFields re-fetches the login page and scrapes every hidden
// input. The portal rotates its csrf salt per page load, so this runs
// right before each credential submission.
func (c *Client) hiddenLoginFields(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "client:hiddenLoginFields")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return nil, err
	}

	fields := map[string]string{}
	doc.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})
	return fields, nil
}

// SubmitCredentials posts the full login form the portal expects. The
// captcha answer is single-use; a rejected submission requires a fresh
// challenge before retrying.
func (c *Client) SubmitCredentials(ctx context.Context, netid, password, captcha string) error {
	ctx, span := tracer.Start(ctx, "client:SubmitCredentials")
	defer span.End()

	fields, err := c.hiddenLoginFields(ctx)
	if err != nil {
		return err
	}
	c.csrfSalt = fields["hdnCSRF"]

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"login":              netid,
			"passwd":             password,
			"ccode":              captcha,
			"txtAN":              netid,
			"txtSK":              password,
			"hdnCaptcha":         captcha,
			"csrfPreventionSalt": c.csrfSalt,
			"_tries":             "1",
			"txtPageAction":      "1",
			"hdnCSRF":            c.csrfSalt,
		}).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}
	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}
	return nil
}

// FetchAttendancePage requests the course-wise attendance report for
// the logged-in student and returns the raw HTML.
func (c *Client) FetchAttendancePage(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchAttendancePage")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"iden":               "9",
			"filter":             "",
			"hdnFormDetails":     "1",
			"csrfPreventionSalt": c.csrfSalt,
		}).
		Post(attendancePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch attendance report")
		return "", err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "attendance report returned an error status")
		return "", fmt.Errorf("attendance report returned status %d", res.StatusCode())
	}
	return res.String(), nil
}
