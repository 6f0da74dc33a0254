package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	creon "github.com/creonlabs/creon-go"
)

// RequestIDHeader carries the per-request id attached to every response.
const RequestIDHeader = "X-Request-Id"

// Mount registers the trigger endpoint on a gin router.
func Mount(r gin.IRouter, path string, svc *creon.Service) {
	r.POST(path, func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, creon.Response{
				OK:    false,
				Error: &creon.ErrorBody{Code: creon.ErrCodeInvalidInput, Message: "unreadable request body"},
			})
			return
		}

		resp := svc.Handle(c.Request.Context(), body)
		c.JSON(statusFor(resp), resp)
	})
}
