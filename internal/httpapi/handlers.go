package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/codepass"
	"github.com/MrEthical07/codepass/middleware"
)

type issueCodeRequest struct {
	Guardians  int   `json:"guardians"`
	Visitors   int   `json:"visitors"`
	ScheduleID int64 `json:"scheduleId"`
}

type issueCodeResponse struct {
	RandomID   string    `json:"randomId"`
	Guardians  int       `json:"guardians"`
	Visitors   int       `json:"visitors"`
	ScheduleID int64     `json:"scheduleId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (h *handlers) issueCode(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	desc, err := h.svc.IssueCode(r.Context(), codepass.CodePayload{
		Guardians:  req.Guardians,
		Visitors:   req.Visitors,
		ScheduleID: req.ScheduleID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueCodeResponse{
		RandomID:   desc.Code,
		Guardians:  desc.Payload.Guardians,
		Visitors:   desc.Payload.Visitors,
		ScheduleID: desc.Payload.ScheduleID,
		ExpiresAt:  desc.ExpiresAt,
	})
}

type verifyRequest struct {
	RandomID string `json:"randomId"`
}

type verifyResponse struct {
	codepass.TokenPair
	Guardians int `json:"guardians"`
	Visitors  int `json:"visitors"`
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Verify(r.Context(), req.RandomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		TokenPair: res.Tokens,
		Guardians: res.Payload.Guardians,
		Visitors:  res.Payload.Visitors,
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

type validResponse struct {
	Valid bool `json:"valid"`
}

// validateToken answers {"valid": false} for any token denial. Only an
// unreachable directory or store is an error.
func (h *handlers) validateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	exists, err := h.svc.ValidateExistence(r.Context(), req.Token)
	if err != nil && !errors.Is(err, codepass.ErrTokenInvalid) {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validResponse{Valid: err == nil && exists})
}

type subjectResponse struct {
	UserID string `json:"userId"`
}

func (h *handlers) verifyHeader(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization header is missing", CodeInvalidToken)
		return
	}

	subject, err := h.svc.Authenticate(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, subjectResponse{UserID: subject})
}

type reissueRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *handlers) reissue(w http.ResponseWriter, r *http.Request) {
	var req reissueRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.svc.Reissue(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type meResponse struct {
	UserID    string    `json:"userId"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token", CodeInvalidToken)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:    claims.SubjectID,
		IsAdmin:   claims.IsAdmin,
		ExpiresAt: claims.ExpiresAt,
	})
}

type adminLoginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

func (h *handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.svc.AdminLogin(r.Context(), req.LoginID, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}
