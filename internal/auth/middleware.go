package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradekeeper/internal/config"
	"tradekeeper/internal/repository"
)

const principalKey = "auth.principal"

// Middleware resolves the bearer token into a Principal. The operator token
// comes from config; any other token is looked up as an account owner or
// delegate key.
func Middleware(cfg config.AuthConfig, repo repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Disabled {
			c.Set(principalKey, Principal{Role: RoleOperator})
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" || p == "/docs" {
			c.Next()
			return
		}
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if cfg.OperatorToken != "" && token == cfg.OperatorToken {
			c.Set(principalKey, Principal{Role: RoleOperator})
			c.Next()
			return
		}
		account, err := repo.GetAccountByAPIKey(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if account == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown token"})
			return
		}
		role := RoleOwner
		if account.DelegateKey != "" && token == account.DelegateKey {
			role = RoleDelegate
		}
		c.Set(principalKey, Principal{Role: role, Address: account.Address})
		c.Next()
	}
}

// CallerFrom returns the request principal set by Middleware.
func CallerFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
