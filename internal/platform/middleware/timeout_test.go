package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runWithTimeout(path string, d time.Duration, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, path, nil), rec)
	return rec, RequestTimeout(d)(handler)(c)
}

func TestRequestTimeout_FastHandlerSeesDeadline(t *testing.T) {
	rec, err := runWithTimeout("/api/v1/queue", time.Minute, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected the request context to carry a deadline")
		}
		return c.NoContent(http.StatusCreated)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

// A save that blocks on the doctor lock past the deadline gets the same
// timeout body the services produce.
func TestRequestTimeout_SlowHandlerGets504(t *testing.T) {
	rec, err := runWithTimeout("/api/v1/encounters/consultations", 30*time.Millisecond, func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["kind"] != "timeout" || body["retryable"] != true {
		t.Errorf("unexpected timeout body %v", body)
	}
}

func TestRequestTimeout_WebsocketIsExempt(t *testing.T) {
	for _, path := range []string{"/ws", "/ws/queue"} {
		called := false
		_, err := runWithTimeout(path, 10*time.Millisecond, func(c echo.Context) error {
			called = true
			if _, ok := c.Request().Context().Deadline(); ok {
				t.Errorf("%s: websocket connections must not get a deadline", path)
			}
			return nil
		})
		if err != nil || !called {
			t.Errorf("%s: expected the handler to run, err=%v", path, err)
		}
	}
}

func TestRequestTimeout_HandlerErrorPassesThrough(t *testing.T) {
	_, err := runWithTimeout("/api/v1/bills/x", time.Minute, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	})
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}
