// Package testutil provides helpers for HTTP handler and container-backed
// repository tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// Probe endpoints answer plain text and are not part of the document.
var unvalidatedPaths = map[string]bool{
	"/healthz":          true,
	"/readyz":           true,
	"/api/openapi.yaml": true,
}

// OpenAPIValidator checks responses against an OpenAPI document.
type OpenAPIValidator struct {
	router routers.Router
}

// NewOpenAPIValidator loads the document at specPath or fails the test.
func NewOpenAPIValidator(t *testing.T, specPath string) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator(specPath)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator loads and validates the document at specPath.
func LoadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec from %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

// ValidateResponse reports a test error when resp does not match the
// operation req was routed to. The response body is restored afterwards.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if unvalidatedPaths[req.URL.Path] {
		return
	}

	// The document has no servers block, so routes match on the bare path.
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		t.Errorf("create route request: %v", err)
		return
	}
	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		t.Errorf("OpenAPI: no route for %s %s: %v", req.Method, req.URL.Path, err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}

	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("OpenAPI: response for %s %s (status %d) does not match: %s\nbody: %s",
			req.Method, req.URL.Path, resp.StatusCode, clip(err.Error(), 500), clip(string(body), 200))
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
