package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminIssuer = "tempvoice"

// AdminClaims are carried by bearer tokens for the admin API.
type AdminClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 admin token for subject.
func IssueAdminToken(secret, subject string, now time.Time, ttl time.Duration) (string, error) {
	claims := AdminClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseAdminToken(secret, raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(adminIssuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearer(c *gin.Context) (string, bool) {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// isAdmin reports whether the request carries a valid admin token.
func isAdmin(c *gin.Context, secret string) (bool, error) {
	raw, ok := bearer(c)
	if !ok {
		return false, errors.New("missing bearer token")
	}
	claims, err := parseAdminToken(secret, raw)
	if err != nil {
		return false, err
	}
	return claims.Admin, nil
}

// AdminAuth rejects requests without an admin bearer token.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := parseAdminToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}
