package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/memberqr/registry"
	"github.com/openclaw/memberqr/store"
)

type memberResponse struct {
	MemberID   string    `json:"member_id"`
	Name       string    `json:"name"`
	Contact    string    `json:"contact"`
	BloodGroup string    `json:"blood_group"`
	CreatedAt  time.Time `json:"created_at"`
	ProfileURL string    `json:"profile_url"`
	QRURL      string    `json:"qr_url"`
}

func (s *Server) toResponse(r *http.Request, m *store.Member) memberResponse {
	return memberResponse{
		MemberID:   m.MemberID,
		Name:       m.Name,
		Contact:    m.Contact,
		BloodGroup: m.BloodGroup,
		CreatedAt:  m.CreatedAt,
		ProfileURL: s.profileURL(r, m.MemberID),
		QRURL:      s.baseURL(r) + "/qr/" + url.PathEscape(m.MemberID),
	}
}

// memberFromPath resolves the {memberID} path parameter. On failure the
// response has been written and ok is false.
func (s *Server) memberFromPath(w http.ResponseWriter, r *http.Request, asJSON bool) (*store.Member, bool) {
	m, err := s.Members.Lookup(r.Context(), chi.URLParam(r, "memberID"))
	if errors.Is(err, store.ErrNotFound) {
		if asJSON {
			writeError(w, http.StatusNotFound, "member not found")
		} else {
			http.Error(w, "Member not found", http.StatusNotFound)
		}
		return nil, false
	}
	if err != nil {
		s.internalError(w, r, err, asJSON)
		return nil, false
	}
	return m, true
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.Members.List(r.Context())
	if err != nil {
		s.internalError(w, r, err, true)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for i := range members {
		resp = append(resp, s.toResponse(r, &members[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, ok := s.memberFromPath(w, r, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.toResponse(r, m))
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req registry.NewMember
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProfileBase = s.baseURL(r)

	m, err := s.Members.Register(r.Context(), req)
	if errors.Is(err, registry.ErrInvalidMember) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err, true)
		return
	}

	w.Header().Set("Location", "/api/members/"+m.MemberID)
	writeJSON(w, http.StatusCreated, s.toResponse(r, m))
}
