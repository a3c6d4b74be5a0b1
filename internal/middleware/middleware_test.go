package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newProtectedRouter(role models.UserRole, allowed ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	stub := validatorStub{claims: &models.JWTClaims{UserID: "ops", Role: role}}
	router.GET("/secure", JWT(stub), RequireRoles(allowed...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, auth string) int {
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestJWTAndRoles(t *testing.T) {
	router := newProtectedRouter(models.RoleScheduler, models.RoleScheduler)
	assert.Equal(t, http.StatusUnauthorized, serve(router, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token good"))
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad"))
	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer good"))
}

func TestRequireRolesForbidsViewer(t *testing.T) {
	router := newProtectedRouter(models.RoleViewer, models.RoleScheduler)
	assert.Equal(t, http.StatusForbidden, serve(router, "Bearer good"))

	admin := newProtectedRouter(models.RoleAdmin, models.RoleScheduler)
	assert.Equal(t, http.StatusNoContent, serve(admin, "Bearer good"))
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, _ int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
}

func TestMetricsUsesRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/timetables/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/timetables/abc", "/exports/download/tok"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Len(t, observer.paths, 2)
	assert.Equal(t, "/timetables/:id", observer.paths[0])
	assert.Equal(t, "unmatched", observer.paths[1])
}
