package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go-khora/utils"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(issuer *utils.TokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(issuer), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	issuer := utils.NewTokenIssuer("secret")
	token, err := issuer.GenerateAccessToken("u1")
	if err != nil {
		t.Fatal(err)
	}
	r := newAuthRouter(issuer)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", token, http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + token, http.StatusOK, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.code {
				t.Fatalf("code = %d, want %d", w.Code, tt.code)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Fatalf("body = %q", w.Body.String())
			}
		})
	}
}
