package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"blackjack-auth/internal/events"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/service"
	"blackjack-auth/internal/util"
)

// AuthHandler exposes the authentication surface: registration, email
// confirmation, login, and the two-factor endpoints.
type AuthHandler struct {
	login        *service.LoginService
	registration *service.RegistrationService
	twoFactor    *service.TwoFactorService
	recorder     *events.Recorder
	logger       *zap.Logger
}

func NewAuthHandler(factory *service.ServiceFactory, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		login:        factory.LoginService(),
		registration: factory.RegistrationService(),
		twoFactor:    factory.TwoFactorService(),
		recorder:     factory.Recorder(),
		logger:       logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

// RegisterRoutes mounts the auth endpoints on the router.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/register", h.Register)
	router.Get("/confirm/{token}", h.Confirm)
	router.Post("/generate-token", h.GenerateToken)
	router.Post("/login", h.Login)
	router.Post("/login/2fa", h.CompleteLogin)
	router.Post("/send-2fa", h.SendTwoFactor)
	router.Post("/verify-2fa", h.VerifyTwoFactor)
	router.Get("/audit/{account_key}", h.AuditTrail)
}

// Register stages a new account and emails the confirmation link.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.registration.Register(ctx, req); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Registration failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "Confirmation email sent"))
}

// Confirm promotes a pending account. Expired and malformed tokens are both
// client errors but carry distinct messages.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	tok := chi.URLParam(r, "token")
	if tok == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("token is required"), "Token is required")
		return
	}

	if err := h.registration.Confirm(ctx, tok); err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired):
			h.respondWithError(w, http.StatusBadRequest, err, "The confirmation link has expired")
		case errors.Is(err, service.ErrTokenInvalid):
			h.respondWithError(w, http.StatusBadRequest, err, "The confirmation link is invalid")
		case errors.Is(err, service.ErrNoSuchAccount):
			h.respondWithError(w, http.StatusNotFound, err, "No registration found for this link")
		default:
			h.respondWithError(w, http.StatusInternalServerError, err, "Confirmation failed")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Account confirmed"))
	h.logger.Info("Account confirmed via HTTP",
		util.Duration("duration", time.Since(startTime)),
	)
}

// GenerateToken mints a confirmation token for an email address.
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("email is required"), "Email is required")
		return
	}

	tok := h.registration.IssueToken(req.Email)
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"token": tok}, ""))
}

// Login runs the password stage of a sign-in.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.login.Login(ctx, req)
	if err != nil {
		err = uniformLoginError(err)
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	message := "Login successful"
	if result.TwoFactorRequired {
		message = "Verification code sent"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, message))
	h.logger.Info("Login handled via HTTP",
		util.String("account_key", result.AccountKey),
		util.Bool("two_factor_required", result.TwoFactorRequired),
		util.Duration("duration", time.Since(startTime)),
	)
}

// uniformLoginError hides account existence from the login surface: an
// unknown identifier and a wrong password produce the same response. The
// service keeps them distinct internally for the audit trail.
func uniformLoginError(err error) error {
	if errors.Is(err, service.ErrNoSuchAccount) {
		return service.ErrBadCredentials
	}
	return err
}

// CompleteLogin finishes a two-factor login.
func (h *AuthHandler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ChallengeID string `json:"challenge_id"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("challenge_id and code are required"), "Invalid request body")
		return
	}

	result, err := h.login.CompleteChallenge(ctx, req.ChallengeID, req.Code)
	if err != nil {
		err = uniformLoginError(err)
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Login successful"))
}

// SendTwoFactor issues a standalone email challenge. The code is echoed in
// the response body; existing clients depend on that shape.
func (h *AuthHandler) SendTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("email is required"), "Email is required")
		return
	}

	challengeID, code, err := h.twoFactor.Issue(ctx, req.Email, models.RoleUser, req.Email, nil, false)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to send verification code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"code":         code,
		"challenge_id": challengeID,
	}, "Verification code sent"))
}

// VerifyTwoFactor checks a standalone challenge. Clients either present the
// challenge_id from /send-2fa, or the older field pair where the expected
// code is echoed back by the client itself.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		ChallengeID  string `json:"challenge_id"`
		Code         string `json:"code"`
		ExpectedCode string `json:"expected_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("code is required"), "Invalid request body")
		return
	}

	switch {
	case req.ChallengeID != "":
		if _, err := h.twoFactor.Verify(ctx, req.ChallengeID, req.Code); err != nil {
			h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
			return
		}
	case req.ExpectedCode != "":
		// Legacy shape: exact string equality, fail closed.
		if req.Code != req.ExpectedCode {
			h.respondWithError(w, http.StatusUnauthorized, service.ErrTwoFactorFailed, "Verification failed")
			return
		}
	default:
		h.respondWithError(w, http.StatusBadRequest, errors.New("challenge_id or expected_code is required"), "Invalid request body")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Code verified"))
}

// AuditTrail returns an account's recent security events from the audit index.
func (h *AuthHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountKey := chi.URLParam(r, "account_key")
	if accountKey == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("account key is required"), "Account key is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	trail, err := h.recorder.RecentEvents(ctx, accountKey, limit)
	if err != nil {
		if errors.Is(err, events.ErrAuditUnavailable) {
			h.respondWithError(w, http.StatusServiceUnavailable, err, "Audit index unavailable")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err, "Audit query failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"account_key": accountKey,
		"events":      trail,
	}, ""))
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func (h *AuthHandler) getStatusCode(err error) int {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoSuchAccount):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBadCredentials), errors.Is(err, service.ErrTwoFactorFailed):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrTokenExpired), errors.Is(err, service.ErrTokenInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
