package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/middleware"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/internal/services"
	"github.com/stretchr/testify/require"
)

// jsonBody is a request payload
type jsonBody map[string]interface{}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// withActor stands in for AuthMiddleware
func withActor(actor models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ActorContextKey, actor)
		c.Next()
	}
}

func parent() models.Actor {
	return models.Actor{UserID: uuid.New(), Phone: "254712345678", Role: models.RoleParent}
}

func sacco() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleSacco}
}

func admin() models.Actor {
	return models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// auditSpy records audit entries
type auditSpy struct {
	mu      sync.Mutex
	entries []services.AuditEntry
}

func (a *auditSpy) Record(_ context.Context, entry services.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *auditSpy) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}
