package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gorilla/csrf"

	"github.com/openclaw/memberqr/registry"
	"github.com/openclaw/memberqr/store"
)

type pageData struct {
	Title       string
	Members     []store.Member
	Member      *store.Member
	ProfileURL  string
	Form        registry.NewMember
	BloodGroups []string
	CSRFToken   string
	Error       string
}

// render executes the named page into a buffer first so a template error
// never produces a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.internalError(w, r, err, false)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	members, err := s.Members.List(r.Context())
	if err != nil {
		s.internalError(w, r, err, false)
		return
	}
	s.render(w, r, http.StatusOK, "index", pageData{Title: "Members", Members: members})
}

func (s *Server) registerPage(r *http.Request, form registry.NewMember, errMsg string) pageData {
	return pageData{
		Title:       "Register a member",
		Form:        form,
		BloodGroups: registry.BloodGroups,
		CSRFToken:   csrf.Token(r),
		Error:       errMsg,
	}
}

func formFromRequest(r *http.Request) registry.NewMember {
	return registry.NewMember{
		Name:       r.PostForm.Get("name"),
		Contact:    r.PostForm.Get("contact"),
		BloodGroup: r.PostForm.Get("blood_group"),
	}
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register", s.registerPage(r, registry.NewMember{}, ""))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := formFromRequest(r)
	form.ProfileBase = s.baseURL(r)

	m, err := s.Members.Register(r.Context(), form)
	if errors.Is(err, registry.ErrInvalidMember) {
		s.render(w, r, http.StatusBadRequest, "register", s.registerPage(r, form, err.Error()))
		return
	}
	if err != nil {
		s.internalError(w, r, err, false)
		return
	}

	http.Redirect(w, r, "/member/"+m.MemberID, http.StatusSeeOther)
}

func (s *Server) handleMemberDetails(w http.ResponseWriter, r *http.Request) {
	m, ok := s.memberFromPath(w, r, false)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "member_details", pageData{
		Title:      m.Name,
		Member:     m,
		ProfileURL: s.profileURL(r, m.MemberID),
	})
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	m, ok := s.memberFromPath(w, r, false)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "public_profile", pageData{Title: m.Name, Member: m})
}
