package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// HSTSMaxAge is one year in seconds.
	HSTSMaxAge = 31536000

	// DefaultBodyLimit caps request bodies; verification messages are short.
	DefaultBodyLimit = "64K"

	// apiCSP allows nothing: the API only returns JSON and event streams.
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
)

// SecurityConfig controls CORS and response hardening.
type SecurityConfig struct {
	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	AllowedOrigins   []string
	AllowCredentials bool

	HSTSMaxAge            int
	ContentSecurityPolicy string
}

// DefaultSecurityConfig returns the settings for a same-origin deployment.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowCredentials:      true,
		HSTSMaxAge:            HSTSMaxAge,
		ContentSecurityPolicy: apiCSP,
	}
}

// NewCORS returns CORS middleware, or nil when no origins are configured.
// Browser dashboards on another origin need credentials for the session
// cookie and the Authorization header for bearer tokens.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	if len(config.AllowedOrigins) == 0 {
		return nil
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType,
			echo.HeaderAccept, echo.HeaderAuthorization,
		},
		AllowCredentials: config.AllowCredentials,
		MaxAge:           600,
	})
}

// NewSecureHeaders sets hardening headers. HSTS is only sent over TLS.
func NewSecureHeaders(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            config.HSTSMaxAge,
		ContentSecurityPolicy: config.ContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}

// NoStore marks API responses uncacheable. Alert lists differ per role and
// per session, so shared caches must never keep them.
func NoStore(prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, prefix) {
				c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			}
			return next(c)
		}
	}
}

// NewBodyLimit limits request body size, defaulting to DefaultBodyLimit.
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	if limit == "" {
		limit = DefaultBodyLimit
	}
	return middleware.BodyLimit(limit)
}
