package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/enhance"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/graph"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/history"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/workflow"
)

const testSecret = "test-secret"

type stubGenerator struct {
	mu    sync.Mutex
	specs []graph.Spec
	image string
	err   error
}

func (g *stubGenerator) Generate(_ context.Context, spec graph.Spec, _ time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.specs = append(g.specs, spec)
	return g.image, nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.specs)
}

type stubEnhancer struct {
	enhanceErr error
	reaction   string
}

func (e *stubEnhancer) Enhance(_ context.Context, prompt string) (string, error) {
	if e.enhanceErr != nil {
		return "", e.enhanceErr
	}
	return "enhanced: " + prompt, nil
}

func (e *stubEnhancer) Reaction(_ context.Context, _ enhance.ReactionInput) (string, error) {
	return e.reaction, nil
}

func testTemplate() *graph.Graph {
	return &graph.Graph{Nodes: []graph.Node{
		{ID: 32, Type: "CLIPTextEncode", WidgetValues: []any{"placeholder"}},
		{ID: 20, Type: "Int", WidgetValues: []any{"64"}},
		{ID: 37, Type: "ImpactSwitch", WidgetValues: []any{1}},
	}}
}

func newTestServer(gen *stubGenerator, enh *stubEnhancer) *Server {
	mgr := workflow.NewManager(testTemplate())
	return NewServer(testSecret, time.Minute, mgr, gen, enh)
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpointIsOpen(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"}, &stubEnhancer{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"}, &stubEnhancer{}).Handler()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"no bearer prefix", testSecret, http.StatusUnauthorized},
		{"valid token", "Bearer " + testSecret, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.NewReader(`{"prompt":"a fish"}`)
			req := httptest.NewRequest(http.MethodPost, "/generate-image", body)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGenerateInjectsEnhancedPrompt(t *testing.T) {
	gen := &stubGenerator{image: "QkFTRTY0"}
	h := newTestServer(gen, &stubEnhancer{}).Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-image", testSecret,
		GenerateRequest{Prompt: "red fish"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Base64Image != "QkFTRTY0" {
		t.Errorf("base64_image = %q", resp.Base64Image)
	}
	if resp.Base64Images != nil {
		t.Errorf("base64_images should be omitted for single image, got %v", resp.Base64Images)
	}

	if gen.calls() != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls())
	}
	spec := gen.specs[0]
	want := "enhanced: red fish, full body, full shape"
	if got := spec["32"].Inputs["text"]; got != want {
		t.Errorf("injected prompt = %v, want %q", got, want)
	}
}

func TestGenerateMultipleImages(t *testing.T) {
	gen := &stubGenerator{image: "IMG"}
	h := newTestServer(gen, &stubEnhancer{}).Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-fish", testSecret,
		GenerateRequest{Prompt: "tuna", NumImages: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Base64Images) != 3 {
		t.Errorf("got %d images, want 3", len(resp.Base64Images))
	}
	if gen.calls() != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls())
	}
}

func TestGenerateBadRequests(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"}, &stubEnhancer{}).Handler()

	t.Run("malformed json", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/generate-image", testSecret, "{not json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
	t.Run("empty prompt", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/generate-image", testSecret, GenerateRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGenerateEngineFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("engine exploded")}
	h := newTestServer(gen, &stubEnhancer{}).Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-image", testSecret,
		GenerateRequest{Prompt: "a fish"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "engine exploded") {
		t.Errorf("error body should carry the cause, got %s", rec.Body.String())
	}
}

func TestGenerateEnhancerFailure(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"},
		&stubEnhancer{enhanceErr: errors.New("quota exceeded")}).Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-image", testSecret,
		GenerateRequest{Prompt: "a fish"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestFixedSizeEndpointsIgnoreRequestDimensions(t *testing.T) {
	gen := &stubGenerator{image: "IMG"}
	srv := newTestServer(gen, &stubEnhancer{})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-boat", testSecret,
		GenerateRequest{Prompt: "sloop", Width: 999, Height: 999})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// Boat sprites are rendered at 192x96; the single square size node in
	// the test template takes the width.
	if got := gen.specs[0]["20"].Inputs["Number"]; got != "192" {
		t.Errorf("size node value = %v, want %q", got, "192")
	}
}

func TestReaction(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"},
		&stubEnhancer{reaction: "Whoa, a big one!"}).Handler()

	t.Run("happy path", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/generate-reaction", testSecret,
			enhance.ReactionInput{Location: "open sea", Human: "old sailor", Boat: "sloop", Fish: "tuna", Size: "huge"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp ReactionResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Reaction != "Whoa, a big one!" {
			t.Errorf("reaction = %q", resp.Reaction)
		}
	})
	t.Run("missing fish", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/generate-reaction", testSecret,
			enhance.ReactionInput{Location: "open sea"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHistoryRecording(t *testing.T) {
	gen := &stubGenerator{image: "IMG"}
	srv := newTestServer(gen, &stubEnhancer{})
	srv.SetHistory(history.NewMemoryRepository())
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/generate-human", testSecret,
		GenerateRequest{Prompt: "fisherman"})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/generations", testSecret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var resp struct {
		Generations []*history.Record `json:"generations"`
		Total       int               `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Generations) != 1 {
		t.Fatalf("total = %d, records = %d", resp.Total, len(resp.Generations))
	}
	got := resp.Generations[0]
	if got.Endpoint != "human" || got.Prompt != "fisherman" || got.Status != history.StatusSucceeded {
		t.Errorf("record = %+v", got)
	}
	if got.Width != 64 || got.Height != 128 {
		t.Errorf("record size = %dx%d, want 64x128", got.Width, got.Height)
	}
}

func TestHistoryRecordsFailures(t *testing.T) {
	gen := &stubGenerator{err: errors.New("engine exploded")}
	srv := newTestServer(gen, &stubEnhancer{})
	srv.SetHistory(history.NewMemoryRepository())
	h := srv.Handler()

	doRequest(t, h, http.MethodPost, "/generate-image", testSecret,
		GenerateRequest{Prompt: "a fish"})

	rec := doRequest(t, h, http.MethodGet, "/generations", testSecret, nil)
	var resp struct {
		Generations []*history.Record `json:"generations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Generations) != 1 {
		t.Fatalf("records = %d, want 1", len(resp.Generations))
	}
	got := resp.Generations[0]
	if got.Status != history.StatusFailed || !strings.Contains(got.Error, "engine exploded") {
		t.Errorf("record = %+v", got)
	}
}

func TestListGenerationsWithoutRepository(t *testing.T) {
	h := newTestServer(&stubGenerator{image: "IMG"}, &stubEnhancer{}).Handler()

	rec := doRequest(t, h, http.MethodGet, "/generations", testSecret, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("total = %d, want 0", resp.Total)
	}
}
