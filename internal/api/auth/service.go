// Package auth establishes the caller role for API requests from a browser
// session cookie or a signed bearer token.
package auth

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/session"
)

// SessionName is the cookie carrying the browser session.
const SessionName = "wildalert_session"

const (
	sessionKeyRole     = "role"
	sessionKeyClientID = "client_id"

	// tokenClientPrefix keeps token identities apart from cookie identities
	// in the client registry.
	tokenClientPrefix = "token:"

	minSecretLength = 32
)

// Sentinel errors for authentication failures.
var (
	ErrInvalidToken   = errors.NewStd("invalid or expired token")
	ErrTokensDisabled = errors.NewStd("bearer tokens are not configured")
	ErrInvalidRole    = errors.NewStd("unknown role")
)

// AuthMethod represents the type of authentication used
type AuthMethod int

const (
	AuthMethodNone AuthMethod = iota
	AuthMethodToken
	AuthMethodBrowserSession
)

func (m AuthMethod) String() string {
	switch m {
	case AuthMethodToken:
		return "token"
	case AuthMethodBrowserSession:
		return "session"
	default:
		return "none"
	}
}

// Identity is who a request speaks for. ClientID is stable across requests of
// one login and empty for anonymous callers.
type Identity struct {
	Role     session.Role
	ClientID string
	Method   AuthMethod
}

// Authenticated reports whether the identity carries a known role.
func (i Identity) Authenticated() bool {
	return i.Role.Valid()
}

// Provider adapts the identity for the engine.
func (i Identity) Provider() session.Provider {
	if !i.Authenticated() {
		return session.Anonymous()
	}
	return session.NewStatic(i.Role)
}

// Config configures the Service.
type Config struct {
	SessionSecret string
	SessionMaxAge time.Duration
	SecureCookie  bool
	// JWTSecret enables bearer tokens when set.
	JWTSecret string
	Clock     func() time.Time
}

// Claims is the bearer token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates caller identities.
type Service struct {
	store  *sessions.CookieStore
	jwtKey []byte
	parser *jwt.Parser
	clock  func() time.Time
	log    logger.Logger
}

// NewService creates the auth service. The session secret must be at least
// 32 characters, as must the JWT secret when one is given.
func NewService(cfg Config, log logger.Logger) (*Service, error) {
	if len(cfg.SessionSecret) < minSecretLength {
		return nil, errors.Newf("session secret must be at least %d characters", minSecretLength).
			Component("auth").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < minSecretLength {
		return nil, errors.Newf("jwt secret must be at least %d characters", minSecretLength).
			Component("auth").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = 12 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	hashKey := sha256.Sum256([]byte(cfg.SessionSecret))
	blockKey := sha256.Sum256([]byte("encryption:" + cfg.SessionSecret))
	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}

	s := &Service{
		store: store,
		clock: cfg.Clock,
		log:   log,
	}
	if cfg.JWTSecret != "" {
		s.jwtKey = []byte(cfg.JWTSecret)
		s.parser = jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Clock),
		)
	}
	return s, nil
}

// TokensEnabled reports whether bearer tokens are accepted.
func (s *Service) TokensEnabled() bool {
	return s.parser != nil
}

// Identify resolves the request identity. A bearer token takes precedence
// over the cookie and an invalid one is an error rather than anonymous.
func (s *Service) Identify(c echo.Context) (Identity, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		return s.identifyToken(header)
	}
	return s.identifySession(c), nil
}

func (s *Service) identifyToken(header string) (Identity, error) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return Identity{}, ErrInvalidToken
	}
	if !s.TokensEnabled() {
		return Identity{}, ErrTokensDisabled
	}

	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return s.jwtKey, nil
	}); err != nil {
		s.log.Debug("bearer token rejected", logger.Error(err))
		return Identity{}, ErrInvalidToken
	}

	role, ok := session.ParseRole(claims.Role)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{Role: role, Method: AuthMethodToken}
	if claims.Subject != "" {
		id.ClientID = tokenClientPrefix + claims.Subject
	}
	return id, nil
}

func (s *Service) identifySession(c echo.Context) Identity {
	sess, err := s.store.Get(c.Request(), SessionName)
	if err != nil || sess.IsNew {
		// a cookie signed with an old secret decodes with an error; treat as anonymous
		return Identity{}
	}
	roleStr, _ := sess.Values[sessionKeyRole].(string)
	clientID, _ := sess.Values[sessionKeyClientID].(string)
	role, ok := session.ParseRole(roleStr)
	if !ok || clientID == "" {
		return Identity{}
	}
	return Identity{Role: role, ClientID: clientID, Method: AuthMethodBrowserSession}
}

// Login starts a fresh browser session for role. Any previous session values
// are discarded and a new client id is issued.
func (s *Service) Login(c echo.Context, role session.Role) (Identity, error) {
	if !role.Valid() {
		return Identity{}, ErrInvalidRole
	}

	sess, err := s.store.New(c.Request(), SessionName)
	if sess == nil {
		return Identity{}, errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "session_new").
			Build()
	}
	sess.Values = map[any]any{
		sessionKeyRole:     string(role),
		sessionKeyClientID: uuid.NewString(),
	}
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return Identity{}, errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "session_save").
			Build()
	}

	id := Identity{
		Role:     role,
		ClientID: sess.Values[sessionKeyClientID].(string),
		Method:   AuthMethodBrowserSession,
	}
	s.log.Info("session started",
		logger.String("role", role.String()),
		logger.String("ip", c.RealIP()))
	return id, nil
}

// Logout expires the session cookie. It is a no-op without a session.
func (s *Service) Logout(c echo.Context) error {
	sess, err := s.store.New(c.Request(), SessionName)
	if sess == nil {
		return errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "session_new").
			Build()
	}
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "session_clear").
			Build()
	}
	return nil
}

// IssueToken signs a bearer token for role, valid for ttl.
func (s *Service) IssueToken(role session.Role, subject string, ttl time.Duration) (string, error) {
	if !s.TokensEnabled() {
		return "", ErrTokensDisabled
	}
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	if ttl <= 0 {
		return "", errors.Newf("token ttl must be positive, got %s", ttl).
			Component("auth").
			Category(errors.CategoryValidation).
			Build()
	}

	now := s.clock()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtKey)
	if err != nil {
		return "", errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "sign_token").
			Build()
	}
	return signed, nil
}
