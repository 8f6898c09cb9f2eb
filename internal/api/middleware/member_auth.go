package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/roadwarden/roadwarden/internal/models"
)

const memberContextKey = "member"

// AuthCookieName carries the member JWT.
const AuthCookieName = "rw_auth"

// MemberResolver resolves the authenticated member (if any) from a JWT in
// the auth cookie or bearer header and places it in the request context.
// Resolution is best-effort: anonymous requests pass through untouched.
func MemberResolver(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(AuthCookieName)
		if err != nil || tokenString == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				tokenString = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if tokenString == "" || jwtSecret == "" {
			c.Next()
			return
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.Next()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.Next()
			return
		}
		sub, ok := claims["sub"].(float64)
		if !ok {
			c.Next()
			return
		}

		var member models.Member
		if err := db.Preload("Groups").First(&member, uint(sub)).Error; err == nil && member.Enabled {
			c.Set(memberContextKey, &member)
		}
		c.Next()
	}
}

// MemberFromContext returns the authenticated member or nil.
func MemberFromContext(c *gin.Context) *models.Member {
	if v, ok := c.Get(memberContextKey); ok {
		if member, ok := v.(*models.Member); ok {
			return member
		}
	}
	return nil
}
