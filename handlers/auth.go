package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cryptofolio/config"
	"cryptofolio/currency"
	"cryptofolio/middleware"
	"cryptofolio/models"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
	resetTokenTTL   = time.Hour
)

type signupInput struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

func (a *API) Signup(c *gin.Context) {
	var input signupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	var existing models.User
	err := config.DB.Where("email = ?", email).First(&existing).Error
	if err == nil {
		respond(c, http.StatusConflict, CodeConflict, "email already registered", nil)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		internalError(c, "database error")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, "error hashing password")
		return
	}

	user := models.User{
		Email:             email,
		Password:          string(hashed),
		DisplayName:       input.DisplayName,
		PreferredCurrency: currency.Settlement,
		IsActive:          true,
	}
	if err := config.DB.Create(&user).Error; err != nil {
		internalError(c, "error creating user")
		return
	}
	created(c, user)
}

type loginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	var user models.User
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := config.DB.Where("email = ?", email).First(&user).Error; err != nil {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials", nil)
		return
	}
	if !user.IsActive {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "account disabled", nil)
		return
	}

	accessToken, err := signToken(user.ID, accessTokenTTL)
	if err != nil {
		internalError(c, "error generating token")
		return
	}
	refreshToken, err := signToken(user.ID, refreshTokenTTL)
	if err != nil {
		internalError(c, "error generating refresh token")
		return
	}
	if err := config.Rdb.Set(c.Request.Context(), refreshKey(refreshToken), user.ID, refreshTokenTTL).Err(); err != nil {
		internalError(c, "error storing refresh token")
		return
	}

	ok(c, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a server-side tracked refresh token for a new access
// token. Tokens missing from Redis (logged out or expired) are rejected.
func (a *API) Refresh(c *gin.Context) {
	var input refreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	userID, err := config.Rdb.Get(c.Request.Context(), refreshKey(input.RefreshToken)).Result()
	if err != nil || userID == "" {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "invalid refresh token", nil)
		return
	}

	accessToken, err := signToken(userID, accessTokenTTL)
	if err != nil {
		internalError(c, "error generating token")
		return
	}
	ok(c, gin.H{"access_token": accessToken})
}

func (a *API) Logout(c *gin.Context) {
	var input refreshInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	config.Rdb.Del(c.Request.Context(), refreshKey(input.RefreshToken))
	ok(c, gin.H{"message": "logged out"})
}

func (a *API) Profile(c *gin.Context) {
	user, found := a.currentUser(c)
	if !found {
		return
	}
	ok(c, user)
}

type profileInput struct {
	DisplayName       *string `json:"display_name"`
	PreferredCurrency *string `json:"preferred_currency"`
	Timezone          *string `json:"timezone"`
	DateFormat        *string `json:"date_format"`
}

func (a *API) UpdateProfile(c *gin.Context) {
	var input profileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, found := a.currentUser(c)
	if !found {
		return
	}

	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		updates["display_name"] = *input.DisplayName
	}
	if input.PreferredCurrency != nil {
		cur := currency.Normalise(*input.PreferredCurrency)
		if !currency.Supported(cur) {
			badRequest(c, "unsupported currency")
			return
		}
		updates["preferred_currency"] = cur
	}
	if input.Timezone != nil {
		updates["timezone"] = *input.Timezone
	}
	if input.DateFormat != nil {
		updates["date_format"] = *input.DateFormat
	}
	if len(updates) > 0 {
		if err := config.DB.Model(&user).Updates(updates).Error; err != nil {
			internalError(c, "error updating profile")
			return
		}
	}
	ok(c, user)
}

type changePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

func (a *API) ChangePassword(c *gin.Context) {
	var input changePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, found := a.currentUser(c)
	if !found {
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.CurrentPassword)); err != nil {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "current password is incorrect", nil)
		return
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, "error hashing password")
		return
	}
	if err := config.DB.Model(&user).Update("password", string(hashed)).Error; err != nil {
		internalError(c, "error updating password")
		return
	}
	ok(c, gin.H{"message": "password changed"})
}

type resetRequestInput struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetRequest always answers 200 so the endpoint cannot be used to
// probe which emails exist. The token is returned in the body; mail delivery
// is outside this service.
func (a *API) PasswordResetRequest(c *gin.Context) {
	var input resetRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	var user models.User
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := config.DB.Where("email = ?", email).First(&user).Error; err != nil {
		ok(c, gin.H{"message": "if the account exists, a reset token was issued"})
		return
	}

	token := models.PasswordResetToken{
		UserID: user.ID,
		Token:  uuid.NewString(),
	}
	if err := config.DB.Create(&token).Error; err != nil {
		internalError(c, "error creating reset token")
		return
	}
	ok(c, gin.H{"reset_token": token.Token})
}

type resetConfirmInput struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (a *API) PasswordResetConfirm(c *gin.Context) {
	var input resetConfirmInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	var token models.PasswordResetToken
	if err := config.DB.Where("token = ?", input.Token).First(&token).Error; err != nil {
		badRequest(c, "invalid reset token")
		return
	}
	if token.UsedAt != nil || time.Since(token.CreatedAt) > resetTokenTTL {
		badRequest(c, "reset token expired or already used")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, "error hashing password")
		return
	}

	now := time.Now().UTC()
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", token.UserID).
			Update("password", string(hashed)).Error; err != nil {
			return err
		}
		return tx.Model(&token).Update("used_at", &now).Error
	})
	if err != nil {
		internalError(c, "error resetting password")
		return
	}
	ok(c, gin.H{"message": "password reset"})
}

func (a *API) currentUser(c *gin.Context) (models.User, bool) {
	var user models.User
	userID := c.GetString(middleware.ContextUserID)
	if err := config.DB.First(&user, "id = ?", userID).Error; err != nil {
		respond(c, http.StatusUnauthorized, CodeUnauthorized, "user not found", nil)
		return user, false
	}
	return user, true
}

func signToken(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Settings.JWTSecret))
}

func refreshKey(token string) string {
	return "refresh_" + token
}
