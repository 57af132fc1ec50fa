package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeValidator struct {
	userID string
	err    error
	tokens []string
}

func (f *fakeValidator) ValidateToken(token string) (string, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

func newAuthRouter(validator TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewMiddleware(validator).RequireAuth())
	router.GET("/protected", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestRequireAuthAcceptsBearer(t *testing.T) {
	validator := &fakeValidator{userID: "user_1"}
	router := newAuthRouter(validator)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(validator.tokens) != 1 || validator.tokens[0] != "sometoken" {
		t.Errorf("validator received %v", validator.tokens)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	router := newAuthRouter(&fakeValidator{userID: "user_1"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsNonBearer(t *testing.T) {
	router := newAuthRouter(&fakeValidator{userID: "user_1"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	router := newAuthRouter(&fakeValidator{err: errors.New("bad token")})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthAcceptsWebSocketQueryToken(t *testing.T) {
	validator := &fakeValidator{userID: "user_1"}
	router := newAuthRouter(validator)

	req := httptest.NewRequest(http.MethodGet, "/protected?token=wstoken", nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(validator.tokens) != 1 || validator.tokens[0] != "wstoken" {
		t.Errorf("validator received %v", validator.tokens)
	}
}
