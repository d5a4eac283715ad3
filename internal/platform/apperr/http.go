package apperr

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope returned by every endpoint.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Type    Type              `json:"type"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HTTP converts a service error into an echo.HTTPError carrying the envelope.
func HTTP(err error) error {
	if err == nil {
		return nil
	}
	body := Body{Error: BodyError{Type: TypeOf(err), Message: PublicMessage(err)}}
	if e, ok := As(err); ok && e.Type == TypeValidation {
		body.Error.Fields = e.Fields
	}
	he := echo.NewHTTPError(HTTPStatus(err), body)
	he.Internal = err
	return he
}

// ErrorHandler renders errors as Body. Plain echo errors (bad route params,
// bind failures) are wrapped into the same envelope.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var body Body

		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			switch m := he.Message.(type) {
			case Body:
				body = m
			case string:
				body = Body{Error: BodyError{Type: typeForStatus(status), Message: m}}
			default:
				body = Body{Error: BodyError{Type: typeForStatus(status), Message: fmt.Sprint(m)}}
			}
		} else {
			status = HTTPStatus(err)
			body = Body{Error: BodyError{Type: TypeOf(err), Message: PublicMessage(err)}}
			if e, ok := As(err); ok && e.Type == TypeValidation {
				body.Error.Fields = e.Fields
			}
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", status).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func typeForStatus(status int) Type {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeStateConflict
	default:
		return TypeUnknown
	}
}
