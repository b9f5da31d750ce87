package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "config.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "config.yaml" {
			t.Errorf("expected context file=config.yaml, got %v", file)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := FetchError("upstream timeout").Retryable().Build()
		wrapped := fmt.Errorf("build abc: %w", inner)

		if !IsClassified(wrapped) {
			t.Fatal("expected wrapped error to be classified")
		}
		if !HasCategory(wrapped, CategoryFetch) {
			t.Error("expected fetch category")
		}
		if !IsRetryable(wrapped) {
			t.Error("expected retryable")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected plain errors to report internal category")
		}
	})

	t.Run("Sentinel comparison", func(t *testing.T) {
		sentinel := NotFoundError("session not found").Build()
		err := fmt.Errorf("lookup: %w", sentinel.WithContext("session_id", "s1"))
		if !errors.Is(err, sentinel) {
			t.Error("expected errors.Is to match sentinel by category and message")
		}
		if _, ok := sentinel.Context().Get("session_id"); ok {
			t.Error("WithContext must not mutate the sentinel")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(cause, CategoryGeneration, "generator call failed").
		Warning().
		RateLimit().
		WithContext("attempt", 2).
		Build()

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	if err.RetryStrategy() != RetryRateLimit || !err.CanRetry() {
		t.Errorf("unexpected retry strategy %s", err.RetryStrategy())
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	if UserAction := NewError(CategoryValidation, "x").WithRetry(RetryUserAction).Build(); UserAction.CanRetry() {
		t.Error("user action errors must not be auto-retried")
	}
}

func TestHTTPErrorAdapter(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	cases := []struct {
		err  error
		want int
	}{
		{ValidationError("bad input").Build(), http.StatusBadRequest},
		{NotFoundError("missing").Build(), http.StatusNotFound},
		{ConflictError("not ready").Build(), http.StatusConflict},
		{FetchError("down").Build(), http.StatusBadGateway},
		{BuildError("failed").Build(), http.StatusUnprocessableEntity},
		{StorageError("disk").Build(), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := a.StatusCodeFor(tc.err); got != tc.want {
			t.Errorf("StatusCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/builds/x", nil)
	a.WriteErrorResponse(rec, req, WrapError(errors.New("secret path /var/x"), CategoryStorage, "artifact unavailable").Build())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body HTTPErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "artifact unavailable" || strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	if resp := a.FormatErrorResponse(errors.New("raw detail")); resp.Error != "internal error" {
		t.Errorf("unclassified error leaked: %+v", resp)
	}
}

func TestCLIErrorAdapter(t *testing.T) {
	var out strings.Builder
	var code int
	a := NewCLIErrorAdapter(false, nil)
	a.out = &out
	a.exit = func(c int) { code = c }

	a.HandleError(FetchError("place lookup failed").Retryable().Build())
	if code != 8 {
		t.Errorf("exit code = %d, want 8", code)
	}
	if got := out.String(); got != "Error: place lookup failed (retryable)\n" {
		t.Errorf("output = %q", got)
	}
	if a.ExitCodeFor(nil) != 0 || a.ExitCodeFor(errors.New("x")) != 1 {
		t.Error("unexpected exit codes for nil/unclassified")
	}
}
