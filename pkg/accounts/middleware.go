package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"starnotary/pkg/response"
)

const callerKey = "starnotary.caller"

// RequireCaller authenticates the request with HTTP Basic credentials of the
// form uuid:password and records the account uuid for CallerID.
func RequireCaller(service AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, password, ok := c.Request.BasicAuth()
		if !ok || id == "" {
			c.Header("WWW-Authenticate", `Basic realm="starnotary"`)
			response.Abort(c, http.StatusUnauthorized, "missing credentials")
			return
		}

		a, err := service.Authenticate(c.Request.Context(), id, password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				c.Header("WWW-Authenticate", `Basic realm="starnotary"`)
				response.Abort(c, http.StatusUnauthorized, err.Error())
				return
			}
			response.Abort(c, http.StatusInternalServerError, err.Error())
			return
		}

		SetCaller(c, a.UUID)
		c.Next()
	}
}

// CallerID returns the authenticated account uuid, or "" outside
// RequireCaller.
func CallerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

func SetCaller(c *gin.Context, uuid string) {
	c.Set(callerKey, uuid)
}
