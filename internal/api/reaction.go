package api

import (
	"encoding/json"
	"net/http"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/enhance"
)

// ReactionResponse carries a short in-game fisherman line.
type ReactionResponse struct {
	Reaction string `json:"reaction"`
}

func (s *Server) handleReaction(w http.ResponseWriter, r *http.Request) {
	var in enhance.ReactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if in.Fish == "" {
		writeError(w, http.StatusBadRequest, "fish is required")
		return
	}

	reaction, err := s.enhancer.Reaction(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reaction generation failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ReactionResponse{Reaction: reaction})
}
