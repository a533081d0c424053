package http

import (
	"net/http"

	tplog "thinkpay/internal/log"
	"thinkpay/internal/services"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string       `json:"token"`
	Identity identityView `json:"identity"`
}

// handleRegister creates the identity and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Auth.Register(r.Context(), SanitizeInput(req.Username), req.Email, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	id, token, err := s.deps.Auth.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tplog.FromContext(r.Context()).InfoContext(r.Context(), "Identity signed up", tplog.FieldUserID, id.UserID)
	Created(tokenResponse{Token: token, Identity: newIdentityView(id)}).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, token, err := s.deps.Auth.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	OK(tokenResponse{Token: token, Identity: newIdentityView(id)}).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := s.deps.Auth.Logout(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Insights != nil {
		s.deps.Insights.Forget(id.UserID)
	}
	NoContent().Write(w)
}

type meResponse struct {
	Identity identityView `json:"identity"`
	User     *userView    `json:"user,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	resp := meResponse{Identity: newIdentityView(id)}
	if sess, err := s.deps.Sessions.Get(r.Context(), id.UserID); err == nil {
		u := newUserView(sess.Snapshot().User)
		resp.User = &u
		resp.Identity.Username = u.Username
	}
	OK(resp).Write(w)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *services.Session) {
	OK(newSessionView(sess.Snapshot(), sess)).Write(w)
}
