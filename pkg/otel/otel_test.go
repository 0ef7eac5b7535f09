package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestSetupWithoutEndpointStaysLocal(t *testing.T) {
	res, err := Setup(Config{ServiceName: "pulse-api", Environment: "test"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, ok := res.Logger.Handler().(*prettyHandler); !ok {
		t.Errorf("handler = %T, want the stderr pretty handler when no endpoint is set", res.Logger.Handler())
	}
	if err := res.Shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestMiddlewareSkipsGivenPaths(t *testing.T) {
	var served []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		served = append(served, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}

	router := chi.NewRouter()
	router.Use(Middleware("pulse-api", "/healthz", "/metrics"))
	router.Get("/healthz", handler)
	router.Get("/metrics", handler)
	router.Get("/ws", handler)

	for _, path := range []string{"/healthz", "/metrics", "/ws"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", path, rr.Code)
		}
	}
	if len(served) != 3 {
		t.Errorf("served %v, want all three paths to reach the handler", served)
	}
}
