package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const (
	subjectContextKey = "subject"
	// emailContextKey хранит email покупателя из claim "email".
	emailContextKey = "email"
)

// AuthMiddleware пропускает запросы с валидным HS256 bearer-токеном.
// Пустой секрет отклоняет все запросы.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || len(secret) == 0 {
			abortUnauthorized(c)
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c)
			return
		}

		if sub, err := claims.GetSubject(); err == nil {
			c.Set(subjectContextKey, sub)
		}
		if email, ok := claims["email"].(string); ok {
			c.Set(emailContextKey, email)
		}
		c.Next()
	}
}

// buyerFields возвращает покупателя из токена для логов. В анонимном режиме пусто.
func buyerFields(c *gin.Context) log.Fields {
	fields := log.Fields{}
	if email := c.GetString(emailContextKey); email != "" {
		fields["buyer_email"] = email
	}
	if sub := c.GetString(subjectContextKey); sub != "" {
		fields["buyer_id"] = sub
	}
	return fields
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ApiResponse{StatusCode: http.StatusUnauthorized, Message: "Authorized, you are not"})
}
