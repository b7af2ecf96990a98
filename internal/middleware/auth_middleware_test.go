package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/internal/policy"
	"github.com/skulbus/skulbus-backend/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService(
		"test-access-secret-key-123456789",
		"test-refresh-secret-key-123456789",
		time.Hour,
		24*time.Hour,
	)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()

	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "254712345678", "parent")
	require.NoError(t, err)

	router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
		actor, exists := GetActor(c)
		require.True(t, exists)
		assert.Equal(t, userID, actor.UserID)
		assert.Equal(t, models.RoleParent, actor.Role)
		c.JSON(http.StatusOK, gin.H{"phone": actor.Phone})
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "254712345678")
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	jwtService := setupTestJWTService()
	expired := jwt.NewService("test-access-secret-key-123456789", "test-refresh-secret-key-123456789", -time.Minute, time.Hour)
	expiredToken, err := expired.GenerateAccessToken(uuid.New(), "254712345678", "parent")
	require.NoError(t, err)
	unknownRole, err := jwtService.GenerateAccessToken(uuid.New(), "254712345678", "driver")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"basic scheme", "Basic abc", "INVALID_AUTH_FORMAT"},
		{"empty bearer", "Bearer   ", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"expired token", "Bearer " + expiredToken, "TOKEN_EXPIRED"},
		{"unknown role", "Bearer " + unknownRole, "INVALID_TOKEN"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/protected", AuthMiddleware(jwtService), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	authorizer, err := policy.NewAuthorizer(context.Background())
	require.NoError(t, err)
	jwtService := setupTestJWTService()

	router := setupTestRouter()
	router.POST("/trips",
		AuthMiddleware(jwtService),
		RequirePermission(authorizer, policy.PermTripsManage),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(role string) int {
		token, err := jwtService.GenerateAccessToken(uuid.New(), "254712345678", role)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/trips", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("sacco"))
	assert.Equal(t, http.StatusCreated, send("admin"))
	assert.Equal(t, http.StatusForbidden, send("parent"))
}

type failingChecker struct{}

func (failingChecker) Allowed(context.Context, string, string) (bool, error) {
	return false, errors.New("boom")
}

func TestRequirePermission_Errors(t *testing.T) {
	router := setupTestRouter()
	router.GET("/no-auth", RequirePermission(failingChecker{}, policy.PermAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/policy-error", func(c *gin.Context) {
		c.Set(ActorContextKey, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin})
	}, RequirePermission(failingChecker{}, policy.PermAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no-auth", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/policy-error", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
