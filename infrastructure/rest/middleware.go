package rest

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chat-sync/errors"

	"github.com/gin-gonic/gin"
	"github.com/valyala/fastjson"
)

const maxBodyBytes = 1 << 20

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs every request once it has been served.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// enforceJSON rejects POST bodies that are not well formed JSON before any binding happens.
func enforceJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			abort(c, errors.Validation("unreadable body: %v", err))
			return
		}
		if len(body) > maxBodyBytes {
			abort(c, errors.Validation("body exceeds %d bytes", maxBodyBytes))
			return
		}
		if len(body) == 0 {
			c.Request.Body = http.NoBody
			c.Next()
			return
		}
		if err := fastjson.ValidateBytes(body); err != nil {
			abort(c, errors.Validation("malformed json: %v", err))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// abort writes the error body shared by every endpoint.
func abort(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	message := err.Error()
	if code == errors.CodeInternal {
		message = "internal error"
	}
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
		"error": gin.H{"code": code, "message": message},
	})
}
