package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// JSONErrorHandler folds every unhandled error, echo's own routing errors
// included, into the ErrorResponse envelope the rest of the API speaks. In
// dev mode the underlying error text rides along in the detail field.
func JSONErrorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = http.StatusText(he.Code)
		}

		body := ErrorResponse{Error: msg, Code: code}
		if dev {
			body.Detail = err.Error()
		}
		_ = c.JSON(code, body)
	}
}
