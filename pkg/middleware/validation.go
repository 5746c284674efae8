package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/claimtech/dialler/pkg/errors"
	"github.com/claimtech/dialler/pkg/phone"
)

// SecurityHeaders sets conservative browser security headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestSizeLimit caps the request body size
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			errors.ErrorResponse(c, 413, "Payload Too Large", "request body exceeds limit")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ValidateSIDParam validates that a provider call SID parameter is present
// and looks like a Twilio SID (CAxxxx, 34 chars) or at least non-empty.
func ValidateSIDParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.Param(paramName)
		if sid == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			c.Abort()
			return
		}
		if len(sid) > 64 {
			errors.BadRequest(c, "invalid "+paramName+" parameter")
			c.Abort()
			return
		}
		c.Set(paramName, sid)
		c.Next()
	}
}

// ValidatePhoneParam validates that a phone parameter is in E.164 format
func ValidatePhoneParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		number := c.Param(paramName)
		if number == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			c.Abort()
			return
		}

		if !phone.ValidateE164(number) {
			errors.BadRequest(c, "invalid "+paramName+": must be in E.164 format (e.g., +447738585850)")
			c.Abort()
			return
		}

		c.Set(paramName, number)
		c.Next()
	}
}
