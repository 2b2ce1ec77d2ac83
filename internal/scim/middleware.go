package scim

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authenticate checks the static bearer credential. The comparison is
// constant-time so the token cannot be probed byte by byte.
func (h *Handler) authenticate(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	if header == "" {
		return false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.cfg.BearerToken)) == 1
}

// wrap runs the per-request state machine around a handler: authenticate,
// execute, and convert any returned error into the wire document. It is the
// single place protocol errors are serialized. A failed credential yields 401
// with no body.
func (h *Handler) wrap(fn func(*gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticate(c) {
			h.writeError(c, Unauthorized())
			return
		}

		if err := fn(c); err != nil {
			h.writeError(c, err)
		}
	}
}

// notImplemented answers 501 with no body. These endpoints respond before
// authentication is consulted.
func notImplemented(c *gin.Context) {
	c.Status(http.StatusNotImplemented)
}
