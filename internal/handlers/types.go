package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// paramUint parses a numeric path parameter, returning a 400 HTTPError on
// garbage input.
func paramUint(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// getStringFromContext safely reads a string value set by middleware.
func getStringFromContext(c echo.Context, key string) string {
	if val := c.Get(key); val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// actor resolves who is performing a request, preferring the authenticated
// email over the UID.
func actor(c echo.Context) string {
	if email := getStringFromContext(c, "userEmail"); email != "" {
		return email
	}
	if uid := getStringFromContext(c, "userUID"); uid != "" {
		return uid
	}
	return "anonymous"
}
