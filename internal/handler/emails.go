package handler

import (
	"context"      // provides context with cancellation for service calls
	"database/sql" // sql.ErrNoRows signals an unknown user
	"errors"       // sentinel error matching for status mapping
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for service calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/email-confirmation/internal/middleware" // caller identity helper
	"github.com/iliyamo/email-confirmation/internal/repository" // store sentinel errors
	"github.com/iliyamo/email-confirmation/internal/service"    // email lifecycle service
)

// EmailHandler bundles dependencies for the email lifecycle endpoints.
type EmailHandler struct {
	Emails *service.EmailService
}

func NewEmailHandler(s *service.EmailService) *EmailHandler {
	return &EmailHandler{Emails: s}
}

// ----- DTOs -----

type addEmailReq struct {
	Email     string `json:"email"`
	KeyLength int    `json:"key_length"`
}
type emailReq struct {
	Email string `json:"email"`
}
type confirmReq struct {
	Key string `json:"key"`
}
type setPrimaryReq struct {
	Email            string `json:"email"`
	RequireConfirmed *bool  `json:"require_confirmed"` // defaults to true when omitted
}

type keyResp struct {
	Email string `json:"email"`
	Key   string `json:"key"`
}
type emailListResp struct {
	Confirmed   []string `json:"confirmed"`
	Unconfirmed []string `json:"unconfirmed"`
}
type primaryResp struct {
	Email       string     `json:"email"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// serviceErr translates the service and store error taxonomy into HTTP
// responses. Every failure is synchronous and caller-visible; nothing
// is retried here.
func serviceErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
	case errors.Is(err, repository.ErrDuplicateAddress):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, repository.ErrAddressNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "email not found"})
	case errors.Is(err, sql.ErrNoRows):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, repository.ErrConfirmationExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "confirmation key expired"})
	case errors.Is(err, service.ErrEmailNotConfirmed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email not confirmed"})
	case errors.Is(err, service.ErrEmailIsPrimary):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email is primary"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
	}
}

// caller extracts the authenticated user and builds a bounded context.
func caller(c echo.Context) (uint64, context.Context, context.CancelFunc, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return 0, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	return uid, ctx, cancel, true
}

// ListEmails returns the caller's addresses partitioned by confirmation
// state. GET /v1/emails
func (h *EmailHandler) ListEmails(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	confirmed, err := h.Emails.GetConfirmedEmails(ctx, uid)
	if err != nil {
		return serviceErr(c, err)
	}
	unconfirmed, err := h.Emails.GetUnconfirmedEmails(ctx, uid)
	if err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusOK, emailListResp{Confirmed: confirmed, Unconfirmed: unconfirmed})
}

// AddUnconfirmedEmail registers a new unconfirmed address and returns
// its confirmation key. POST /v1/emails
func (h *EmailHandler) AddUnconfirmedEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req addEmailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	key, err := h.Emails.AddUnconfirmedEmail(ctx, uid, req.Email, req.KeyLength)
	if err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusCreated, keyResp{Email: strings.ToLower(strings.TrimSpace(req.Email)), Key: key})
}

// AddConfirmedEmail registers an address that is confirmed from the
// start. POST /v1/emails/confirmed
func (h *EmailHandler) AddConfirmedEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	key, err := h.Emails.AddConfirmedEmail(ctx, uid, req.Email)
	if err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusCreated, keyResp{Email: strings.ToLower(strings.TrimSpace(req.Email)), Key: key})
}

// EnsureEmail is the idempotent add: existing confirmed addresses are
// left alone (key comes back null), existing unconfirmed addresses get
// a reset key, and unknown addresses are created unconfirmed.
// POST /v1/emails/ensure
func (h *EmailHandler) EnsureEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	key, err := h.Emails.AddEmailIfNotExists(ctx, uid, req.Email)
	if err != nil {
		return serviceErr(c, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if key == "" {
		return c.JSON(http.StatusOK, echo.Map{"email": email, "key": nil})
	}
	return c.JSON(http.StatusOK, keyResp{Email: email, Key: key})
}

// ConfirmEmail consumes a confirmation key scoped to the caller.
// POST /v1/emails/confirm
func (h *EmailHandler) ConfirmEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req confirmReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "key required"})
	}
	email, err := h.Emails.ConfirmEmail(ctx, uid, strings.TrimSpace(req.Key))
	if err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"email": email})
}

// ResetEmailConfirmation regenerates the key for one of the caller's
// addresses, invalidating the previous key. POST /v1/emails/reset
func (h *EmailHandler) ResetEmailConfirmation(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	key, err := h.Emails.ResetEmailConfirmation(ctx, uid, req.Email)
	if err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusOK, keyResp{Email: strings.ToLower(strings.TrimSpace(req.Email)), Key: key})
}

// RemoveEmail deletes one of the caller's addresses. The primary
// address is protected. DELETE /v1/emails
func (h *EmailHandler) RemoveEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	if err := h.Emails.RemoveEmail(ctx, uid, req.Email); err != nil {
		return serviceErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetPrimaryEmail reports the caller's primary address and its
// confirmation state. GET /v1/primary-email
func (h *EmailHandler) GetPrimaryEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	email, err := h.Emails.GetPrimaryEmail(ctx, uid)
	if err != nil {
		return serviceErr(c, err)
	}
	confirmed, err := h.Emails.IsConfirmed(ctx, uid)
	if err != nil {
		return serviceErr(c, err)
	}
	resp := primaryResp{Email: email, Confirmed: confirmed}
	if confirmed {
		if at, err := h.Emails.ConfirmedAt(ctx, uid); err == nil {
			resp.ConfirmedAt = at
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// SetPrimaryEmail changes the caller's primary address. Unless the
// request opts out, the new primary must already be confirmed.
// PUT /v1/primary-email
func (h *EmailHandler) SetPrimaryEmail(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	var req setPrimaryReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	requireConfirmed := true
	if req.RequireConfirmed != nil {
		requireConfirmed = *req.RequireConfirmed
	}
	if err := h.Emails.SetPrimaryEmail(ctx, uid, req.Email, requireConfirmed); err != nil {
		return serviceErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"email": strings.ToLower(strings.TrimSpace(req.Email))})
}

// GetConfirmationKey returns the current key for the given email, or
// for the primary address when the query parameter is omitted.
// GET /v1/emails/key?email=
func (h *EmailHandler) GetConfirmationKey(c echo.Context) error {
	uid, ctx, cancel, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	defer cancel()

	email := strings.TrimSpace(c.QueryParam("email"))
	key, err := h.Emails.GetConfirmationKey(ctx, uid, email)
	if err != nil {
		return serviceErr(c, err)
	}
	if email == "" {
		if email, err = h.Emails.GetPrimaryEmail(ctx, uid); err != nil {
			return serviceErr(c, err)
		}
	}
	return c.JSON(http.StatusOK, keyResp{Email: strings.ToLower(email), Key: key})
}
