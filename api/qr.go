package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openclaw/memberqr/metrics"
	"github.com/openclaw/memberqr/qr"
)

// baseURL returns the configured external URL, or one derived from the
// request when none is configured.
func (s *Server) baseURL(r *http.Request) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return s.scheme(r) + "://" + r.Host
}

func (s *Server) scheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return strings.TrimSpace(strings.Split(p, ",")[0])
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// profileURL returns the absolute URL of a member's public profile.
func (s *Server) profileURL(r *http.Request, memberID string) string {
	return s.baseURL(r) + "/profile/" + url.PathEscape(memberID)
}

// handleQR renders the QR code pointing at the member's public profile. A
// logo that cannot be read falls back to the plain code.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	m, ok := s.memberFromPath(w, r, false)
	if !ok {
		return
	}

	data := s.profileURL(r, m.MemberID)
	code, err := s.Composer.Compose(data)
	if errors.Is(err, qr.ErrLogoRead) {
		s.Log.Warn("logo unreadable, serving plain code", "member_id", m.MemberID, "error", err)
		code, err = s.Composer.ComposePlain(data)
	}
	if err != nil {
		s.internalError(w, r, err, false)
		return
	}

	png, err := code.PNG()
	if err != nil {
		s.internalError(w, r, err, false)
		return
	}
	metrics.QRRendered(code.Logo)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
