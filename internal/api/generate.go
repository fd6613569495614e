package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/graph"
	"github.com/ai-game-oneday/ai-game-oneday-server/internal/history"
)

const maxImagesPerRequest = 4

// assetProfile is the per-endpoint tuning: a style suffix appended after
// prompt enhancement, default dimensions, and the background-removal
// default. fixedSize endpoints ignore request dimensions because the game
// renders those assets at a hard-coded size.
type assetProfile struct {
	endpoint         string
	suffix           string
	width, height    int
	fixedSize        bool
	removeBackground bool
}

var (
	assetGeneral    = assetProfile{endpoint: "image", suffix: ", full body, full shape", width: 64, height: 64, removeBackground: true}
	assetFish       = assetProfile{endpoint: "fish", suffix: ", full body", width: 64, height: 64, removeBackground: true}
	assetHuman      = assetProfile{endpoint: "human", suffix: ", 2D platformer style side view, full body, head, shoes", width: 64, height: 128, fixedSize: true, removeBackground: true}
	assetBoat       = assetProfile{endpoint: "boat", suffix: ", 2D platformer style side view", width: 192, height: 96, fixedSize: true, removeBackground: true}
	assetBackground = assetProfile{endpoint: "background", width: 320, height: 180, fixedSize: true}
)

// GenerateRequest is the JSON body for the generate-* endpoints.
type GenerateRequest struct {
	Prompt           string `json:"prompt"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	NumImages        int    `json:"num_images"`
	RemoveBackground *bool  `json:"remove_background,omitempty"`
}

// GenerateResponse carries the produced image(s) base64-encoded.
type GenerateResponse struct {
	Base64Image  string   `json:"base64_image"`
	Base64Images []string `json:"base64_images,omitempty"`
}

func (s *Server) handleGenerate(profile assetProfile) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		width, height := profile.width, profile.height
		if !profile.fixedSize {
			if req.Width > 0 {
				width = req.Width
			}
			if req.Height > 0 {
				height = req.Height
			}
		}
		removeBG := profile.removeBackground
		if req.RemoveBackground != nil {
			removeBG = *req.RemoveBackground
		}

		ctx := r.Context()
		started := time.Now()

		enhanced, err := s.enhancer.Enhance(ctx, req.Prompt)
		if err != nil {
			s.record(r, profile, req, width, height, started, err)
			writeError(w, http.StatusInternalServerError, "prompt enhancement failed: "+err.Error())
			return
		}
		enhanced += profile.suffix

		prepared := s.workflows.Prepare(enhanced, width, height, removeBG)
		spec, err := graph.Compile(&graph.Document{Graph: prepared})
		if err != nil {
			s.record(r, profile, req, width, height, started, err)
			writeError(w, http.StatusInternalServerError, "workflow compilation failed: "+err.Error())
			return
		}

		n := req.NumImages
		if n < 1 {
			n = 1
		}
		if n > maxImagesPerRequest {
			n = maxImagesPerRequest
		}

		images := make([]string, n)
		g, gctx := errgroup.WithContext(ctx)
		for i := range n {
			g.Go(func() error {
				img, err := s.engine.Generate(gctx, spec, s.timeout)
				if err != nil {
					return err
				}
				images[i] = s.postProcess(gctx, img, removeBG)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.record(r, profile, req, width, height, started, err)
			writeError(w, http.StatusInternalServerError, "generation failed: "+err.Error())
			return
		}

		s.record(r, profile, req, width, height, started, nil)

		resp := GenerateResponse{Base64Image: images[0]}
		if n > 1 {
			resp.Base64Images = images
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// postProcess runs the external background-removal pass when requested.
// The engine's own removal branch already ran inside the workflow; this
// second pass cleans up halos on sprites. Best-effort by design.
func (s *Server) postProcess(ctx context.Context, b64 string, removeBG bool) string {
	if !removeBG || s.rembg == nil {
		return b64
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		slog.Warn("api: generated image is not valid base64, skipping rembg", "err", err)
		return b64
	}
	return base64.StdEncoding.EncodeToString(s.rembg.Remove(ctx, raw))
}

// record stores a history entry; failures only warn.
func (s *Server) record(r *http.Request, profile assetProfile, req GenerateRequest, width, height int, started time.Time, genErr error) {
	if s.history == nil {
		return
	}
	rec := &history.Record{
		ID:        uuid.NewString(),
		Endpoint:  profile.endpoint,
		Prompt:    req.Prompt,
		Width:     width,
		Height:    height,
		Status:    history.StatusSucceeded,
		Duration:  time.Since(started),
		CreatedAt: started,
	}
	if genErr != nil {
		rec.Status = history.StatusFailed
		rec.Error = genErr.Error()
	}
	if err := s.history.Create(r.Context(), rec); err != nil {
		slog.Warn("api: failed to record generation", "err", err)
	}
}

func (s *Server) listGenerations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"generations": []any{}, "total": 0})
		return
	}
	limit, offset := queryInt(r, "limit", 50), queryInt(r, "offset", 0)
	recs, total, err := s.history.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing generations failed: "+err.Error())
		return
	}
	if recs == nil {
		recs = []*history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"generations": recs, "total": total})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 0 {
		return def
	}
	return n
}
