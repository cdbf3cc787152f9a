package api

import (
	"crypto/sha256"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"
)

const csrfField = "csrf_token"

// csrfProtect guards the registration form with a double-submit token: the
// form field must match the signed cookie issued to the same client.
func (s *Server) csrfProtect() func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte(s.SecretKey))
	protect := csrf.Protect(key[:],
		csrf.FieldName(csrfField),
		csrf.CookieName("memberqr_csrf"),
		csrf.Path("/register"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Secure(strings.HasPrefix(s.BaseURL, "https://")),
		csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.isTLS(r) {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// isTLS reports whether the client reached us over HTTPS, directly or
// through a proxy.
func (s *Server) isTLS(r *http.Request) bool {
	return s.scheme(r) == "https"
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.Log.Warn("registration form rejected", "reason", csrf.FailureReason(r),
		"remote", r.RemoteAddr)
	r.ParseForm()
	s.render(w, r, http.StatusForbidden, "register",
		s.registerPage(r, formFromRequest(r), "The form expired, please submit it again."))
}
