package httpapi

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	creon "github.com/creonlabs/creon-go"
)

// Register registers the trigger endpoint on an echo instance.
func Register(e *echo.Echo, path string, svc *creon.Service) {
	e.POST(path, func(c echo.Context) error {
		requestID := c.Request().Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response().Header().Set(RequestIDHeader, requestID)

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, creon.Response{
				OK:    false,
				Error: &creon.ErrorBody{Code: creon.ErrCodeInvalidInput, Message: "unreadable request body"},
			})
		}

		resp := svc.Handle(c.Request().Context(), body)
		return c.JSON(statusFor(resp), resp)
	})
}
