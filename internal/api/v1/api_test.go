package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/errors"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

type harness struct {
	e      *echo.Echo
	engine *engine.Engine
	ctrl   *Controller
	auth   *auth.Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	eng := engine.New(alert.NewStore(), engine.Options{
		Clock:   func() time.Time { return testNow },
		Notices: notice.NewCenter(notice.Config{TTL: time.Hour, RatePerSecond: 100, Burst: 100}, nil),
	})
	svc, err := auth.NewService(auth.Config{
		SessionSecret: strings.Repeat("s", 32),
		JWTSecret:     strings.Repeat("j", 32),
	}, nil)
	require.NoError(t, err)

	e := echo.New()
	opts = append([]Option{WithHeartbeat(time.Hour)}, opts...)
	ctrl := New(e, eng, svc, opts...)
	t.Cleanup(func() {
		ctrl.Shutdown()
		eng.Close()
	})
	return &harness{e: e, engine: eng, ctrl: ctrl, auth: svc}
}

func (h *harness) admit(t *testing.T, species alert.Species, camera string, ago time.Duration) alert.Alert {
	t.Helper()
	a, err := h.engine.Admit(alert.Detection{
		Species:        species,
		Confidence:     91,
		DetectedAt:     testNow.Add(-ago),
		Location:       "Core Zone Section A",
		Coordinates:    alert.Coordinates{Lat: 26.8851, Lng: 93.7792},
		SourceCameraID: camera,
		ImageRef:       "frame/" + camera + "/1",
	})
	require.NoError(t, err)
	return a
}

// do sends a request carrying cookies and returns the recorder.
func (h *harness) do(t *testing.T, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, role string) []*http.Cookie {
	t.Helper()
	rec := h.do(t, http.MethodPost, Prefix+"/session/login", fmt.Sprintf(`{"role":%q}`, role), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLoginAndWhoAmI(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, Prefix+"/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SessionResponse{Role: "none", Method: "none"}, decode[SessionResponse](t, rec))

	cookies := h.login(t, "admin")
	rec = h.do(t, http.MethodGet, Prefix+"/session", "", cookies)
	assert.Equal(t, SessionResponse{Role: "operator", Authenticated: true, Method: "session"},
		decode[SessionResponse](t, rec))

	rec = h.do(t, http.MethodPost, Prefix+"/session/login", `{"role":"ranger"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, Prefix+"/session/logout", "", cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Less(t, rec.Result().Cookies()[0].MaxAge, 0)
}

func TestAnonymousCallers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admit(t, alert.SpeciesTiger, "cam-001", time.Minute)

	rec := h.do(t, http.MethodGet, Prefix+"/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)

	rec = h.do(t, http.MethodPost, Prefix+"/alerts/1/verify", `{"message":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, Prefix+"/notices", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notices":[]}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, Prefix+"/stream", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerificationFlowAndRedaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tiger := h.admit(t, alert.SpeciesTiger, "cam-001", 2*time.Minute)
	h.admit(t, alert.SpeciesBear, "cam-002", time.Minute)

	operator := h.login(t, "operator")
	recipient := h.login(t, "recipient")

	rec := h.do(t, http.MethodGet, Prefix+"/alerts", "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[AlertListResponse](t, rec).Count)

	rec = h.do(t, http.MethodGet, Prefix+"/alerts/pending", "", operator)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[AlertListResponse](t, rec)
	require.Equal(t, 2, pending.Count)
	assert.Equal(t, alert.SpeciesBear, pending.Alerts[0].Species, "newest first")

	path := fmt.Sprintf("%s/alerts/%d/verify", Prefix, tiger.ID)
	rec = h.do(t, http.MethodPost, path, `{"message":"Tiger moving south, avoid trail 4"}`, operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decode[AlertResponse](t, rec)
	assert.Equal(t, alert.StateVerified, verified.State)
	require.NotNil(t, verified.DecidedAt)
	assert.True(t, verified.DecidedAt.Equal(testNow))

	rec = h.do(t, http.MethodGet, Prefix+"/alerts", "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[AlertListResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Tiger moving south, avoid trail 4", list.Alerts[0].OperatorMessage)
	assert.Nil(t, list.Alerts[0].Confidence)
	assert.Empty(t, list.Alerts[0].SourceCameraID)
	assert.Empty(t, list.Alerts[0].ImageRef)
	assert.NotContains(t, rec.Body.String(), "confidence")

	rec = h.do(t, http.MethodGet, fmt.Sprintf("%s/alerts/%d", Prefix, tiger.ID), "", operator)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decode[AlertResponse](t, rec)
	require.NotNil(t, full.Confidence)
	assert.Equal(t, 91, *full.Confidence)
	assert.Equal(t, "cam-001", full.SourceCameraID)

	rec = h.do(t, http.MethodGet, Prefix+"/notices", "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tiger alert: Core Zone Section A")
	assert.NotContains(t, rec.Body.String(), "Bear")
}

func TestVerifyAndRejectErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	a := h.admit(t, alert.SpeciesLeopard, "cam-003", time.Minute)
	b := h.admit(t, alert.SpeciesElephant, "cam-003", time.Minute)

	operator := h.login(t, "operator")
	recipient := h.login(t, "recipient")
	verifyPath := fmt.Sprintf("%s/alerts/%d/verify", Prefix, a.ID)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		cookies []*http.Cookie
		want    int
	}{
		{"recipient cannot verify", http.MethodPost, verifyPath, `{"message":"m"}`, recipient, http.StatusForbidden},
		{"recipient cannot reject", http.MethodPost, fmt.Sprintf("%s/alerts/%d/reject", Prefix, a.ID), "", recipient, http.StatusForbidden},
		{"empty message", http.MethodPost, verifyPath, `{"message":"   "}`, operator, http.StatusUnprocessableEntity},
		{"malformed id", http.MethodPost, Prefix + "/alerts/abc/verify", `{"message":"m"}`, operator, http.StatusBadRequest},
		{"zero id", http.MethodPost, Prefix + "/alerts/0/verify", `{"message":"m"}`, operator, http.StatusBadRequest},
		{"unknown id", http.MethodPost, Prefix + "/alerts/999/verify", `{"message":"m"}`, operator, http.StatusNotFound},
		{"malformed body", http.MethodPost, verifyPath, `{"message":`, operator, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := h.do(t, tt.method, tt.path, tt.body, tt.cookies)
		assert.Equal(t, tt.want, rec.Code, "%s: %s", tt.name, rec.Body.String())
	}

	rec := h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/reject", Prefix, b.ID), "", operator)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alert.StateRejected, decode[AlertResponse](t, rec).State)

	// terminal states do not move again
	rec = h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/verify", Prefix, b.ID), `{"message":"m"}`, operator)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/reject", Prefix, b.ID), "", operator)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHiddenAlertsAreNotFoundForRecipients(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	a := h.admit(t, alert.SpeciesTiger, "cam-001", time.Minute)
	recipient := h.login(t, "recipient")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, fmt.Sprintf("%s/alerts/%d", Prefix, a.ID)},
		{http.MethodPost, fmt.Sprintf("%s/alerts/%d/read", Prefix, a.ID)},
		{http.MethodDelete, fmt.Sprintf("%s/alerts/%d/read", Prefix, a.ID)},
		{http.MethodPut, fmt.Sprintf("%s/focus/%d", Prefix, a.ID)},
	} {
		rec := h.do(t, tc.method, tc.path, "", recipient)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestReadTrackingIsPerRole(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	operator := h.login(t, "operator")
	recipient := h.login(t, "recipient")

	var ids []uint64
	for i, sp := range []alert.Species{alert.SpeciesTiger, alert.SpeciesBear, alert.SpeciesLeopard} {
		a := h.admit(t, sp, "cam-001", time.Duration(i)*time.Minute)
		ids = append(ids, a.ID)
		rec := h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/verify", Prefix, a.ID), `{"message":"m"}`, operator)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	count := func(cookies []*http.Cookie, query string) int {
		rec := h.do(t, http.MethodGet, Prefix+"/alerts/unread-count"+query, "", cookies)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[CountResponse](t, rec).Count
	}
	assert.Equal(t, 3, count(recipient, ""))
	assert.Equal(t, 3, count(operator, ""))

	rec := h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/read", Prefix, ids[0]), "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[AlertResponse](t, rec).Read)

	// repeating is a no-op
	rec = h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/read", Prefix, ids[0]), "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, count(recipient, ""))
	assert.Equal(t, 3, count(operator, ""), "operator flags are independent")
	assert.Equal(t, 2, count(operator, "?role=recipient"))

	rec = h.do(t, http.MethodGet, Prefix+"/alerts/unread-count?role=operator", "", recipient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodDelete, fmt.Sprintf("%s/alerts/%d/read", Prefix, ids[0]), "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[AlertResponse](t, rec).Read)
	assert.Equal(t, 3, count(recipient, ""))

	rec = h.do(t, http.MethodPost, Prefix+"/alerts/read-all", `{"role":"operator"}`, recipient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, Prefix+"/alerts/read-all", "", recipient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"recipient","changed":3}`, rec.Body.String())
	assert.Equal(t, 0, count(recipient, ""))
	assert.Equal(t, 3, count(operator, ""))
}

func TestListQueryOptions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	operator := h.login(t, "operator")
	recipient := h.login(t, "recipient")

	a := h.admit(t, alert.SpeciesTiger, "cam-001", 3*time.Minute)
	h.admit(t, alert.SpeciesBear, "cam-002", 2*time.Minute)
	h.admit(t, alert.SpeciesLeopard, "cam-002", time.Minute)
	rec := h.do(t, http.MethodPost, fmt.Sprintf("%s/alerts/%d/verify", Prefix, a.ID), `{"message":"m"}`, operator)
	require.Equal(t, http.StatusOK, rec.Code)

	list := func(cookies []*http.Cookie, query string) (int, AlertListResponse) {
		rec := h.do(t, http.MethodGet, Prefix+"/alerts"+query, "", cookies)
		if rec.Code != http.StatusOK {
			return rec.Code, AlertListResponse{}
		}
		return rec.Code, decode[AlertListResponse](t, rec)
	}

	_, all := list(operator, "")
	assert.Equal(t, 3, all.Count)

	_, cams := list(operator, "?camera=cam-002")
	assert.Equal(t, 2, cams.Count)

	_, pending := list(operator, "?state=pending")
	assert.Equal(t, 2, pending.Count)

	_, both := list(operator, "?state=pending,verified&limit=2")
	assert.Equal(t, 2, both.Count)
	assert.Equal(t, alert.SpeciesLeopard, both.Alerts[0].Species)

	_, paged := list(operator, "?limit=1&offset=2")
	require.Equal(t, 1, paged.Count)
	assert.Equal(t, alert.SpeciesTiger, paged.Alerts[0].Species)

	_, preview := list(operator, "?role=recipient")
	assert.Equal(t, "recipient", preview.Role)
	assert.Equal(t, 1, preview.Count)

	code, _ := list(recipient, "?role=operator")
	assert.Equal(t, http.StatusForbidden, code)

	for _, q := range []string{"?state=archived", "?limit=-1", "?limit=501", "?offset=x", "?role=ranger"} {
		code, _ := list(operator, q)
		assert.Equal(t, http.StatusUnprocessableEntity, code, q)
	}
}

func TestFocusSurvivesAcrossRequests(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	operator := h.login(t, "operator")
	a := h.admit(t, alert.SpeciesElephant, "cam-002", time.Minute)

	rec := h.do(t, http.MethodGet, Prefix+"/focus", "", operator)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPut, fmt.Sprintf("%s/focus/%d", Prefix, a.ID), "", operator)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, Prefix+"/focus", "", operator)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decode[AlertResponse](t, rec).ID)

	// another session of the same role has its own focus
	other := h.login(t, "operator")
	rec = h.do(t, http.MethodGet, Prefix+"/focus", "", other)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, Prefix+"/focus", "", operator)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodGet, Prefix+"/focus", "", operator)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPut, Prefix+"/focus/404", "", operator)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerTokenCaller(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	a := h.admit(t, alert.SpeciesTiger, "cam-001", time.Minute)

	token, err := h.auth.IssueToken(session.RoleOperator, "console-2", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("%s/alerts/%d/verify", Prefix, a.ID),
		strings.NewReader(`{"message":"confirmed on camera"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, h.ctrl.Clients().Len())

	req = httptest.NewRequest(http.MethodGet, Prefix+"/alerts", http.NoBody)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	rec = httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.admit(t, alert.SpeciesBear, "cam-001", time.Minute)

	rec := h.do(t, http.MethodGet, Prefix+"/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.InDelta(t, 1, body["alerts"], 0)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	eng := engine.New(nil, engine.Options{})
	defer eng.Close()
	anon := eng.Client(session.Anonymous())
	_, unauth := anon.PendingAlerts()
	recipient := eng.Client(session.NewStatic(session.RoleRecipient))
	_, denied := recipient.PendingAlerts()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthenticated", unauth, http.StatusUnauthorized},
		{"permission", denied, http.StatusForbidden},
		{"not found", alert.ErrNotFound, http.StatusNotFound},
		{"transition", alert.ErrInvalidTransition, http.StatusConflict},
		{"validation", alert.ErrValidation, http.StatusUnprocessableEntity},
		{"other", errors.NewStd("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.name)
	}
}
