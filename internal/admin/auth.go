package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// EnvToken names the variable cmds read the admin token from.
const EnvToken = "IBCSIM_ADMIN_TOKEN"

var ErrUnauthorized = errors.New("admin: unauthorized")

// WithToken guards /status with a shared bearer token. An empty token leaves it open.
func (s *Server) WithToken(token string) *Server {
	s.token = strings.TrimSpace(token)
	return s
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		if err := checkToken(s.token, bearer(c.GetHeader("Authorization"))); err != nil {
			log.Warn().Str("node", s.node.NodeID()).Str("client_ip", c.ClientIP()).Msg("admin request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func checkToken(want, got string) error {
	if got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func bearer(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
