package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"oasys-backend/lib/scrapers/srmportal"
)

// Register mounts the gateway's form-encoded endpoints on the mux.
// The paths (and their trailing slashes) match what the web client
// already calls.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/start_login/", s.handleStartLogin)
	mux.HandleFunc("/refresh_captcha/", s.handleRefreshCaptcha)
	mux.HandleFunc("/submit_login/", s.handleSubmitLogin)
}

type captchaResponse struct {
	CaptchaImage string `json:"captcha_image"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to encode response body", "err", err)
	}
}

func writeHtml(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func formUserId(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeJson(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return "", false
	}
	userId := r.PostFormValue("user_id")
	if userId == "" {
		writeJson(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return "", false
	}
	return userId, true
}

func (s *Service) handleStartLogin(w http.ResponseWriter, r *http.Request) {
	userId, ok := formUserId(w, r)
	if !ok {
		return
	}

	captcha, err := s.StartLogin(r.Context(), userId)
	if err != nil {
		slog.ErrorContext(r.Context(), "start_login failed", "user_id", userId, "err", err)
		writeJson(w, http.StatusBadGateway, errorResponse{Error: "failed to reach the portal"})
		return
	}
	writeJson(w, http.StatusOK, captchaResponse{CaptchaImage: captcha})
}

func (s *Service) handleRefreshCaptcha(w http.ResponseWriter, r *http.Request) {
	userId, ok := formUserId(w, r)
	if !ok {
		return
	}

	captcha, err := s.RefreshCaptcha(r.Context(), userId)
	if errors.Is(err, ErrSessionInvalid) {
		writeJson(w, http.StatusBadRequest, errorResponse{Error: "Session invalid"})
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "refresh_captcha failed", "user_id", userId, "err", err)
		writeJson(w, http.StatusBadGateway, errorResponse{Error: "failed to reach the portal"})
		return
	}
	writeJson(w, http.StatusOK, captchaResponse{CaptchaImage: captcha})
}

func (s *Service) handleSubmitLogin(w http.ResponseWriter, r *http.Request) {
	userId, ok := formUserId(w, r)
	if !ok {
		return
	}

	html, err := s.SubmitLogin(
		r.Context(),
		userId,
		r.PostFormValue("netid"),
		r.PostFormValue("password"),
		r.PostFormValue("captcha"),
	)
	switch {
	case errors.Is(err, ErrSessionInvalid):
		writeHtml(w, http.StatusBadRequest, "<h3>Session expired</h3>")
	case errors.Is(err, srmportal.ErrLoginFailed):
		writeHtml(w, http.StatusUnauthorized, "<h3>Login failed</h3>")
	case errors.Is(err, ErrNoAttendanceTable):
		// the account simply has no attendance data, the client
		// surfaces the missing table on its own
		writeHtml(w, http.StatusOK, "<h3>Attendance table not found.</h3>")
	case err != nil:
		slog.ErrorContext(r.Context(), "submit_login failed", "user_id", userId, "err", err)
		writeHtml(w, http.StatusBadGateway, "<h3>Portal unavailable</h3>")
	default:
		writeHtml(w, http.StatusOK, html)
	}
}
