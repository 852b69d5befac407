package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/templates", nil)
	handler(c)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func TestSuccess(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, map[string]string{"name": "Order Entry"})
	})

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
	if resp.Message != "ok" {
		t.Errorf("expected message 'ok', got %q", resp.Message)
	}
}

func TestCreated(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Created(c, map[string]int{"id": 1})
	})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Code != 0 {
		t.Errorf("expected code 0, got %d", resp.Code)
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name    string
		send    func(*gin.Context)
		status  int
		message string
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "alias must be lowercase") }, http.StatusBadRequest, "alias must be lowercase"},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, "token expired") }, http.StatusUnauthorized, "token expired"},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "admin required") }, http.StatusForbidden, "admin required"},
		{"not found", func(c *gin.Context) { NotFound(c, "template not found") }, http.StatusNotFound, "template not found"},
		{"server error", func(c *gin.Context) { ServerError(c, "internal error") }, http.StatusInternalServerError, "internal error"},
		{"unprocessable", func(c *gin.Context) { Unprocessable(c, "fixed fields cannot be renamed") }, http.StatusUnprocessableEntity, "fixed fields cannot be renamed"},
		{"bad gateway", func(c *gin.Context) { BadGateway(c, "schema provider unavailable") }, http.StatusBadGateway, "schema provider unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(tt.send)
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := parseResponse(t, w)
			if resp.Code != tt.status {
				t.Errorf("expected code %d, got %d", tt.status, resp.Code)
			}
			if resp.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, resp.Message)
			}
		})
	}
}

func TestTooManyRequests(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		TooManyRequests(c, 3)
	})

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, expected 3", got)
	}

	resp := parseResponse(t, w)
	if resp.Code != 429 {
		t.Errorf("expected code 429, got %d", resp.Code)
	}
}

func TestError_WithAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
	}{
		{"bad request", NewBadRequest("validation failed"), http.StatusBadRequest},
		{"conflict", NewConflict("table header still has child tables"), http.StatusConflict},
		{"unprocessable", NewUnprocessable("unsupported bundle version"), http.StatusUnprocessableEntity},
		{"bad gateway", NewBadGateway("schema provider timed out"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(func(c *gin.Context) {
				Error(c, tt.err)
			})
			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			resp := parseResponse(t, w)
			if resp.Code != tt.status {
				t.Errorf("expected code %d, got %d", tt.status, resp.Code)
			}
			if resp.Message != tt.err.Message {
				t.Errorf("expected message %q, got %q", tt.err.Message, resp.Message)
			}
		})
	}
}

func TestError_WithGenericError(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, errors.New("something went wrong"))
	})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	resp := parseResponse(t, w)
	if resp.Code != 500 {
		t.Errorf("expected code 500, got %d", resp.Code)
	}
}

func TestAppError_ErrorInterface(t *testing.T) {
	err := NewNotFound("workflow not found")
	if err.Error() != "workflow not found" {
		t.Errorf("expected 'workflow not found', got %q", err.Error())
	}
}
