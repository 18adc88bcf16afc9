// internal/server/auth_handlers.go
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cinetrack/cinetrack-go/internal/auth"
	errordefs "github.com/cinetrack/cinetrack-go/internal/errors"
	"github.com/cinetrack/cinetrack-go/internal/model"
	"github.com/cinetrack/cinetrack-go/internal/schema"
	"github.com/cinetrack/cinetrack-go/internal/storage"
	"github.com/oklog/ulid/v2"
)

const (
	verifyCodeTTL = 24 * time.Hour
	resetCodeTTL  = 15 * time.Minute
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type sendResetRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// handleRegister handles POST /api/auth/register
func (m *Mux) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req registerRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	if err := m.validator.Validate(schema.Register, raw); err != nil {
		m.observeValidation(schema.Register, err)
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid registration payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.Register, nil)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to process credentials", correlationID))
		return
	}

	account := model.Account{
		ID:           ulid.Make().String(),
		Name:         req.Name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	start := time.Now()
	err = m.s.CreateAccount(ctx, account)
	m.observeStorage("create_account", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			m.writeErrorDef(w, errordefs.New(errordefs.CT_CONFLICT, "an account with this email already exists", correlationID))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to create account", correlationID))
		return
	}

	if err := m.p.PublishAccountRegistered(ctx, account); err != nil {
		slog.Warn("failed to publish account registered event", "error", err)
	}
	if err := m.mailer.SendWelcome(ctx, account.Email, account.Name); err != nil {
		slog.Warn("failed to send welcome mail", "error", err)
	}

	token, err := m.authn.Issue(account.ID)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to issue session", correlationID))
		return
	}
	m.setSessionCookie(w, token)

	m.writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"id":       account.ID,
		"name":     account.Name,
		"email":    account.Email,
		"verified": account.Verified,
	})
}

// handleLogin handles POST /api/auth/login
func (m *Mux) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req loginRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	if err := m.validator.Validate(schema.Login, raw); err != nil {
		m.observeValidation(schema.Login, err)
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid login payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.Login, nil)

	start := time.Now()
	account, err := m.s.GetAccountByEmail(ctx, req.Email)
	m.observeStorage("get_account_by_email", start, err)
	if err != nil || !auth.CheckPassword(account.PasswordHash, req.Password) {
		// A missing account and a wrong password read the same to the caller.
		m.writeErrorDef(w, errordefs.New(errordefs.CT_AUTHN, "invalid email or password", correlationID))
		return
	}

	token, err := m.authn.Issue(account.ID)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to issue session", correlationID))
		return
	}
	m.setSessionCookie(w, token)

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":       account.ID,
		"name":     account.Name,
		"email":    account.Email,
		"verified": account.Verified,
	})
}

// handleLogout handles POST /api/auth/logout
func (m *Mux) handleLogout(w http.ResponseWriter, r *http.Request) {
	m.clearSessionCookie(w)
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"loggedOut": true})
}

// handleIsAuth handles GET /api/auth/is-auth. It never fails: an absent or
// invalid session reads as unauthenticated.
func (m *Mux) handleIsAuth(w http.ResponseWriter, r *http.Request) {
	accountID := m.optionalCallerAccountID(r)
	m.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"authenticated": accountID != "",
	})
}

// handleSendVerifyCode handles POST /api/auth/send-verify-code
func (m *Mux) handleSendVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	accountID := accountIDFrom(ctx)

	start := time.Now()
	account, err := m.s.GetAccount(ctx, accountID)
	m.observeStorage("get_account", start, err)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "account not found", correlationID))
		return
	}

	if account.Verified {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_BAD_REQUEST, "account is already verified", correlationID))
		return
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to generate code", correlationID))
		return
	}

	account.VerifyCode = code
	account.VerifyCodeExpires = time.Now().UTC().Add(verifyCodeTTL)
	start = time.Now()
	err = m.s.UpdateAccount(ctx, *account)
	m.observeStorage("update_account", start, err)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to store code", correlationID))
		return
	}

	if err := m.mailer.SendVerifyCode(ctx, account.Email, code); err != nil {
		slog.Warn("failed to send verification mail", "error", err)
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"sent": true})
}

// handleVerifyAccount handles POST /api/auth/verify-account
func (m *Mux) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	accountID := accountIDFrom(ctx)
	defer r.Body.Close()

	var req codeRequest
	if _, err := decodeBody(r, &req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.Code == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "code is required", correlationID))
		return
	}

	account, err := m.s.GetAccount(ctx, accountID)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "account not found", correlationID))
		return
	}

	if account.VerifyCode == "" || account.VerifyCode != req.Code {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid verification code", correlationID))
		return
	}
	if time.Now().UTC().After(account.VerifyCodeExpires) {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "verification code expired", correlationID))
		return
	}

	account.Verified = true
	account.VerifyCode = ""
	account.VerifyCodeExpires = time.Time{}
	start := time.Now()
	err = m.s.UpdateAccount(ctx, *account)
	m.observeStorage("update_account", start, err)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to update account", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"verified": true})
}

// handleSendResetCode handles POST /api/auth/send-reset-code. It always
// reports success so callers cannot probe which emails are registered.
func (m *Mux) handleSendResetCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req sendResetRequest
	if _, err := decodeBody(r, &req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}
	if req.Email == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "email is required", correlationID))
		return
	}

	account, err := m.s.GetAccountByEmail(ctx, req.Email)
	if err == nil {
		code, genErr := auth.GenerateOTP()
		if genErr == nil {
			account.ResetCode = code
			account.ResetCodeExpires = time.Now().UTC().Add(resetCodeTTL)
			if updErr := m.s.UpdateAccount(ctx, *account); updErr == nil {
				if mailErr := m.mailer.SendResetCode(ctx, account.Email, code); mailErr != nil {
					slog.Warn("failed to send reset mail", "error", mailErr)
				}
			}
		}
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"sent": true})
}

// handleResetPassword handles POST /api/auth/reset-password
func (m *Mux) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	defer r.Body.Close()

	var req resetPasswordRequest
	raw, err := decodeBody(r, &req)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid JSON", correlationID))
		return
	}

	if err := m.validator.Validate(schema.ResetPassword, raw); err != nil {
		m.observeValidation(schema.ResetPassword, err)
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CT_SCHEMA_REJECT, "invalid reset payload", correlationID, err.Error()))
		return
	}
	m.observeValidation(schema.ResetPassword, nil)

	account, err := m.s.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid reset code", correlationID))
		return
	}

	if account.ResetCode == "" || account.ResetCode != req.Code {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "invalid reset code", correlationID))
		return
	}
	if time.Now().UTC().After(account.ResetCodeExpires) {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_VALIDATION, "reset code expired", correlationID))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to process credentials", correlationID))
		return
	}

	account.PasswordHash = hash
	account.ResetCode = ""
	account.ResetCodeExpires = time.Time{}
	start := time.Now()
	err = m.s.UpdateAccount(ctx, *account)
	m.observeStorage("update_account", start, err)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_INTERNAL, "failed to update account", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// handleProfile handles GET /api/user/profile
func (m *Mux) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := correlationIDFrom(ctx)
	accountID := accountIDFrom(ctx)

	start := time.Now()
	account, err := m.s.GetAccount(ctx, accountID)
	m.observeStorage("get_account", start, err)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.CT_NOT_FOUND, "account not found", correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, model.Profile{
		Name:     account.Name,
		Email:    account.Email,
		Verified: account.Verified,
	})
}
