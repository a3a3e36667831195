package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/npquoc/mallcore/configs"
)

// CallerKey is the gin context key carrying the authenticated caller id.
const CallerKey = "caller"

type Authz struct {
	secret   []byte
	issuer   string
	audience string
}

func NewAuthz(cfg configs.Config) *Authz {
	return &Authz{
		secret:   []byte(cfg.Security.JWTSecret),
		issuer:   cfg.Security.Issuer,
		audience: cfg.Security.Audience,
	}
}

// Require validates the bearer token and checks that the grant carries
// every listed permission. On success the token subject is stored under
// CallerKey for downstream middleware.
func (a *Authz) Require(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			reject(c, http.StatusUnauthorized, "invalid_request", "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, a.keyFunc,
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithIssuer(a.issuer),
			jwt.WithAudience(a.audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		)
		if err != nil {
			reject(c, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}

		granted := grantedPerms(claims)
		for _, p := range perms {
			if _, ok := granted[p]; !ok {
				reject(c, http.StatusForbidden, "insufficient_scope", "missing permission "+p)
				return
			}
		}

		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set(CallerKey, sub)
		}
		c.Next()
	}
}

func (a *Authz) keyFunc(*jwt.Token) (any, error) {
	return a.secret, nil
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	raw, found := strings.CutPrefix(h, "Bearer ")
	return raw, found && raw != ""
}

func grantedPerms(claims jwt.MapClaims) map[string]struct{} {
	out := map[string]struct{}{}
	arr, _ := claims["perms"].([]any)
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func reject(c *gin.Context, status int, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`"`)
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": desc})
}
