package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/audit"
)

// AuditReads records successful GETs of individual billing resources
// (/api/v1/<type>/<uuid>...). Mutations are audited by the services.
func AuditReads(sink audit.Sink, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			if err != nil || req.Method != http.MethodGet || c.Response().Status >= 400 {
				return err
			}
			resourceType, resourceID, ok := auditTarget(req.URL.Path)
			if !ok {
				return err
			}
			audit.Record(req.Context(), sink, logger, audit.ActionRead, resourceType, resourceID)
			return err
		}
	}
}

func auditTarget(path string) (string, string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "", "", false
	}
	segments := strings.Split(rest, "/")
	if len(segments) < 2 {
		return "", "", false
	}
	if _, err := uuid.Parse(segments[1]); err != nil {
		return "", "", false
	}
	return strings.TrimSuffix(segments[0], "s"), segments[1], true
}
