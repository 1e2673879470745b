package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"cryptofolio/config"
	"cryptofolio/models"
)

// ContextUserID is the gin context key the authenticated user's id is stored
// under.
const ContextUserID = "user_id"

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    1001,
		"message": message,
		"data":    nil,
	})
}

// JWTAuth validates the Bearer token and puts the user id on the context.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "authorization header required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.Settings.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "invalid token claims")
			return
		}
		if exp, ok := claims["exp"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				unauthorized(c, "token expired")
				return
			}
		}

		userID, ok := claims[ContextUserID].(string)
		if !ok || userID == "" {
			unauthorized(c, "invalid token claims")
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// StaffOnly requires an authenticated user with the staff flag. Must be
// mounted after JWTAuth.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)

		var user models.User
		err := config.DB.Select("id", "is_staff", "is_active").First(&user, "id = ?", userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				unauthorized(c, "user not found")
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    3000,
				"message": "internal error",
				"data":    nil,
			})
			return
		}
		if !user.IsActive || !user.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    1001,
				"message": "staff access required",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
