package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	goIAM "github.com/MrEthical07/goIAM"
)

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	base, err := h.baseURL(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	err = h.svc.Register(c.Request.Context(), goIAM.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}, base)
	if err != nil {
		h.writeError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, messageResponse{Message: "Confirmation Email Sent!"})
}

func (h *Handler) ConfirmEmail(c *gin.Context) {
	var q confirmEmailQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.ConfirmEmail(c.Request.Context(), q.Token); err != nil {
		h.writeError(c, "confirmemail", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Email confirmed"})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), goIAM.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		TfaCode:  req.TfaCode,
	})
	if err != nil {
		h.writeError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, "refresh-token", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	base, err := h.baseURL(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email, base); err != nil {
		h.writeError(c, "forgotpassword", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Email sent!"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), c.Param("resetToken"), req.Password); err != nil {
		h.writeError(c, "resetpassword", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Password resetted!"})
}

func (h *Handler) Me(c *gin.Context) {
	user := activeUser(c)
	profile, err := h.svc.GetMe(c.Request.Context(), user)
	if err != nil {
		h.writeError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		ID:               profile.ID,
		Username:         profile.Username,
		Email:            profile.Email,
		Role:             profile.Role,
		IsEmailConfirmed: profile.IsEmailConfirmed,
		IsTfaEnabled:     profile.IsTfaEnabled,
	})
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.UpdatePassword(c.Request.Context(), activeUser(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(c, "updatepassword", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Password updated!"})
}

func (h *Handler) UpdateDetails(c *gin.Context) {
	var req updateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.UpdateDetails(c.Request.Context(), activeUser(c), goIAM.UpdateDetailsInput{Username: req.Username}); err != nil {
		h.writeError(c, "updatedetails", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Details updated"})
}

// GenerateTOTP enables TOTP and returns the secret with its otpauth URI for
// the client to render as a QR code.
func (h *Handler) GenerateTOTP(c *gin.Context) {
	prov, err := h.svc.GenerateTOTP(c.Request.Context(), activeUser(c))
	if err != nil {
		h.writeError(c, "2fa/generate", err)
		return
	}
	c.JSON(http.StatusOK, totpResponse{Secret: prov.Secret, URI: prov.URI})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), activeUser(c)); err != nil {
		h.writeError(c, "logout", err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Logged out"})
}

// CheckAuthorization answers admins only; RequireRole guards it.
func (h *Handler) CheckAuthorization(c *gin.Context) {
	c.JSON(http.StatusOK, messageResponse{Message: "Authorized"})
}
