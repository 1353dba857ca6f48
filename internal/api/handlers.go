package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/interview"
	"github.com/sells-group/forge-interview/internal/model"
	"github.com/sells-group/forge-interview/pkg/voiceagent"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createForgeRequest struct {
	ExpertName     string `json:"expert_name"`
	Domain         string `json:"domain"`
	TargetAudience string `json:"target_audience"`
	Depth          string `json:"depth"`
}

func (s *Server) handleCreateForge(w http.ResponseWriter, r *http.Request) {
	var req createForgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "api: decode request"))
		return
	}
	if req.ExpertName == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: expert_name and domain are required"))
		return
	}

	forge, err := s.store.CreateForge(r.Context(), model.Forge{
		ExpertName:     req.ExpertName,
		Domain:         req.Domain,
		TargetAudience: req.TargetAudience,
		Depth:          req.Depth,
		Status:         model.ForgeStatusDraft,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, forge)
}

func (s *Server) handleGetForge(w http.ResponseWriter, r *http.Request) {
	forge, err := s.store.GetForge(r.Context(), chi.URLParam(r, "forgeID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, forge)
}

func (s *Server) handlePlanRound(w http.ResponseWriter, r *http.Request) {
	sections, err := s.engine.PlanRound(r.Context(), chi.URLParam(r, "forgeID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sections": sections})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	opening, err := s.engine.Start(r.Context(), chi.URLParam(r, "forgeID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"opening": opening})
}

type turnRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	forgeID := chi.URLParam(r, "forgeID")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "api: decode request"))
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: message is required"))
		return
	}

	sse, err := NewEventWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	for ev := range s.engine.Turn(r.Context(), forgeID, req.Message) {
		if err := sse.Write(ev); err != nil {
			// The client is gone; the engine notices via context and the
			// store stays consistent either way.
			zap.L().Warn("sse write failed, client gone",
				zap.String("forge_id", forgeID),
				zap.Error(err),
			)
			return
		}
	}
}

type progressResponse struct {
	Sections []model.Section  `json:"sections"`
	Active   interview.Active `json:"active"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sections, active, err := s.engine.Progress(r.Context(), chi.URLParam(r, "forgeID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Sections: sections, Active: active})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EndEarly(r.Context(), chi.URLParam(r, "forgeID")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.ForgeStatusProcessing)})
}

func (s *Server) handleVoiceBootstrap(w http.ResponseWriter, r *http.Request) {
	session, err := s.voice.Bootstrap(r.Context(), chi.URLParam(r, "forgeID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// voiceWebhookPayload is the platform's event envelope: finalized
// utterances and disconnect notifications share one endpoint.
type voiceWebhookPayload struct {
	Type string `json:"type"` // "utterance" or "disconnect"
	voiceagent.UtteranceEvent
}

func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	var payload voiceWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "api: decode webhook"))
		return
	}
	if payload.ForgeID == "" {
		writeError(w, http.StatusBadRequest, eris.New("api: forge_id is required"))
		return
	}

	switch payload.Type {
	case "utterance":
		if err := s.voice.HandleUtterance(r.Context(), payload.UtteranceEvent); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "disconnect":
		offer, err := s.voice.HandleDisconnect(r.Context(), payload.ForgeID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if offer == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, offer)
	default:
		writeError(w, http.StatusBadRequest, eris.Errorf("api: unknown webhook type %q", payload.Type))
	}
}
