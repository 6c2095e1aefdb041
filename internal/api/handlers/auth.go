package handlers

import (
	"errors"
	"strings"
	"time"

	"tasksync/internal/auth"
	"tasksync/internal/flash"
	"tasksync/internal/models"
	"tasksync/internal/otp"
	"tasksync/internal/repository"
	"tasksync/internal/session"
	"tasksync/pkg/crypto"
	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "tasksync_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

type registerRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// Register membuat akun USER baru yang belum terverifikasi dan mengirim OTP.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if ok, err := parseBody(c, &req, "register"); !ok {
		return err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.ErrorLogger.Error("Error hashing password", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error hashing password")
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: &hash,
		Provider:     models.ProviderCredentials,
		Role:         models.RoleUser,
	}
	if err := h.deps.Store.CreateUser(c.UserContext(), user); err != nil {
		// unique index pada email
		if errors.Is(err, repository.ErrConflict) {
			logger.SecurityLogger.Warn("Duplicate email", zap.String("email", models.NormalizeEmail(req.Email)))
			return fail(c, fiber.StatusConflict, "Email already registered")
		}
		return storeError(c, err, "User")
	}

	if err := h.deps.OTP.Issue(c.UserContext(), otp.PurposeVerify, user.Email); err != nil {
		// akun tetap dibuat, user bisa minta kirim ulang
		logger.ErrorLogger.Error("Error sending verification code", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	logger.AuditLogger.Info("User registered successfully", zap.Int64("user_id", user.ID))
	return respond(c, fiber.StatusCreated, "User created successfully, check your email for the verification code", fiber.Map{
		"id":    user.ID,
		"email": user.Email,
	})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if ok, err := parseBody(c, &req, "verify"); !ok {
		return err
	}
	ctx := c.UserContext()

	user, err := h.deps.Store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusBadRequest, "Invalid or expired code")
	}
	if err != nil {
		return storeError(c, err, "User")
	}
	if user.Verified() {
		return respond(c, fiber.StatusOK, "Email already verified", nil)
	}

	ok, err := h.deps.OTP.Verify(ctx, otp.PurposeVerify, user.Email, req.OTP)
	if err != nil {
		logger.ErrorLogger.Error("Error checking verification code", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}
	if !ok {
		logger.SecurityLogger.Warn("Invalid verification code", zap.String("email", user.Email))
		return fail(c, fiber.StatusBadRequest, "Invalid or expired code")
	}

	if err := h.deps.Store.MarkVerified(ctx, user.ID, h.deps.Clock()); err != nil {
		return storeError(c, err, "User")
	}
	logger.AuditLogger.Info("Email verified", zap.Int64("user_id", user.ID))
	return respond(c, fiber.StatusOK, "Email verified, you can log in now", nil)
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendOTP selalu membalas 200 supaya tidak membocorkan email terdaftar.
func (h *Handler) ResendOTP(c *fiber.Ctx) error {
	var req emailRequest
	if ok, err := parseBody(c, &req, "resend otp"); !ok {
		return err
	}
	ctx := c.UserContext()

	user, err := h.deps.Store.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil && !user.Verified():
		if err := h.deps.OTP.Issue(ctx, otp.PurposeVerify, user.Email); err != nil {
			logger.ErrorLogger.Error("Error resending verification code", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, "If the account needs verification, a new code has been sent", nil)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login memeriksa email/password lalu memasang cookie sesi.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if ok, err := parseBody(c, &req, "login"); !ok {
		return err
	}

	user, err := h.deps.Store.GetUserByEmail(c.UserContext(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		logger.SecurityLogger.Warn("User not found", zap.String("email", models.NormalizeEmail(req.Email)))
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return storeError(c, err, "User")
	}

	if err := auth.CheckPassword(user, req.Password); err != nil {
		logger.SecurityLogger.Warn("Invalid password", zap.Int64("user_id", user.ID), zap.Error(err))
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if !user.Verified() {
		return fail(c, fiber.StatusForbidden, "Email not verified")
	}

	id := session.FromUser(user)
	token, err := h.startSession(c, id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Error generating token")
	}

	logger.AuditLogger.Info("Login success", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return respond(c, fiber.StatusOK, "Login success", fiber.Map{
		"id":       user.ID,
		"role":     user.Role,
		"redirect": id.Dashboard(),
		"token":    token,
	})
}

func (h *Handler) startSession(c *fiber.Ctx, id session.Identity) (string, error) {
	token, exp, err := h.deps.Issuer.Issue(id)
	if err != nil {
		logger.ErrorLogger.Error("Error generating token", zap.Error(err))
		return "", err
	}
	session.SetCookie(c, token, exp, h.deps.Config.CookieSecure)
	return token, nil
}

// GoogleLogin redirects to the provider with a sealed state cookie.
func (h *Handler) GoogleLogin(c *fiber.Ctx) error {
	if h.deps.OAuth == nil {
		return fail(c, fiber.StatusNotFound, "Google login is not configured")
	}

	state := uuid.NewString()
	sealed, err := crypto.Seal(state, h.deps.Config.SessionSecret)
	if err != nil {
		logger.ErrorLogger.Error("Error sealing oauth state", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}
	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    sealed,
		Path:     "/api/auth",
		Expires:  h.deps.Clock().Add(oauthStateTTL),
		HTTPOnly: true,
		Secure:   h.deps.Config.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(h.deps.OAuth.AuthCodeURL(state), fiber.StatusFound)
}

func (h *Handler) clearOAuthState(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.deps.Config.CookieSecure,
	})
}

func (h *Handler) oauthFailed(c *fiber.Ctx, reason string, err error) error {
	logger.SecurityLogger.Warn("Google login failed", zap.String("reason", reason), zap.Error(err))
	flash.Set(c, flash.Error, "Google login failed, please try again", flash.APIMaxAge)
	return c.Redirect("/login", fiber.StatusFound)
}

// GoogleCallback finishes the OAuth flow and signs the user in.
func (h *Handler) GoogleCallback(c *fiber.Ctx) error {
	if h.deps.OAuth == nil {
		return fail(c, fiber.StatusNotFound, "Google login is not configured")
	}
	sealed := c.Cookies(oauthStateCookie)
	h.clearOAuthState(c)

	if errParam := c.Query("error"); errParam != "" {
		return h.oauthFailed(c, "provider error: "+errParam, nil)
	}
	state, err := crypto.Open(sealed, h.deps.Config.SessionSecret)
	if err != nil || state == "" || state != c.Query("state") {
		return h.oauthFailed(c, "state mismatch", err)
	}
	code := c.Query("code")
	if code == "" {
		return h.oauthFailed(c, "missing code", nil)
	}

	ext, err := h.deps.OAuth.Exchange(c.UserContext(), code)
	if err != nil {
		return h.oauthFailed(c, "exchange", err)
	}
	id, err := h.deps.Deriver.FromExternal(c.UserContext(), ext)
	if err != nil {
		return h.oauthFailed(c, "derive identity", err)
	}
	if _, err := h.startSession(c, id); err != nil {
		return h.oauthFailed(c, "issue session", err)
	}

	logger.AuditLogger.Info("Login success", zap.Int64("user_id", id.UserID), zap.String("provider", ext.Provider))
	flash.Set(c, flash.Success, "Login successful", flash.APIMaxAge)
	return c.Redirect(id.Dashboard(), fiber.StatusFound)
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if ok, err := parseBody(c, &req, "forgot password"); !ok {
		return err
	}
	ctx := c.UserContext()

	user, err := h.deps.Store.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if err := h.deps.OTP.Issue(ctx, otp.PurposeReset, user.Email); err != nil {
			logger.ErrorLogger.Error("Error sending reset code", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	case !errors.Is(err, repository.ErrNotFound):
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, "If the email is registered, a reset code has been sent", nil)
}

type resetPasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	OTP             string `json:"otp" validate:"required,len=6,numeric"`
	Password        string `json:"password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if ok, err := parseBody(c, &req, "reset password"); !ok {
		return err
	}
	ctx := c.UserContext()

	user, err := h.deps.Store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusBadRequest, "Invalid or expired code")
	}
	if err != nil {
		return storeError(c, err, "User")
	}

	ok, err := h.deps.OTP.Verify(ctx, otp.PurposeReset, user.Email, req.OTP)
	if err != nil {
		logger.ErrorLogger.Error("Error checking reset code", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal server error")
	}
	if !ok {
		logger.SecurityLogger.Warn("Invalid reset code", zap.String("email", user.Email))
		return fail(c, fiber.StatusBadRequest, "Invalid or expired code")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.ErrorLogger.Error("Error hashing password", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error hashing password")
	}
	if err := h.deps.Store.SetPassword(ctx, user.ID, hash); err != nil {
		return storeError(c, err, "User")
	}
	// kode dari email sudah membuktikan kepemilikan alamat
	if !user.Verified() {
		if err := h.deps.Store.MarkVerified(ctx, user.ID, h.deps.Clock()); err != nil {
			return storeError(c, err, "User")
		}
	}

	logger.AuditLogger.Info("Password reset", zap.Int64("user_id", user.ID))
	return respond(c, fiber.StatusOK, "Password has been reset, you can log in now", nil)
}

func (h *Handler) Logout(c *fiber.Ctx, id session.Identity) error {
	session.ClearCookie(c, h.deps.Config.CookieSecure)
	flash.Set(c, flash.Success, "You have been logged out", flash.APIMaxAge)
	logger.AuditLogger.Info("Logout", zap.Int64("user_id", id.UserID))
	return respond(c, fiber.StatusOK, "Logout success", fiber.Map{"redirect": "/login"})
}

// Session is the read side of the session: the stored user without secrets.
func (h *Handler) Session(c *fiber.Ctx, id session.Identity) error {
	user, err := h.deps.Store.GetUserByID(c.UserContext(), id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}
	if err != nil {
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, "Session found", user)
}

func (h *Handler) Flash(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, "Flash messages", flash.Read(c))
}
