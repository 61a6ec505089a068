package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/actaso/reflecta-lab-sub001/internal/domain"
)

type processRequest struct {
	UserID string `json:"userId"`
}

type processResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Error   string `json:"error,omitempty"`
}

// handleRunScheduler executes one scheduler cycle and returns its counters.
// Intended to be hit by an external periodic trigger about once per hour.
func (s *Server) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cycles.RunCycle(r.Context())
	if err != nil {
		s.log.Error("scheduler cycle failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleProcess accepts one per-user job and runs it in the background. The
// 202 response means "accepted", not "completed": the scheduler must never
// wait on a full generation run.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, processResponse{Success: false, Error: "userId required"})
		return
	}

	go func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProcessTimeout)
		defer cancel()
		if err := s.proc.Process(ctx, userID, false); err != nil {
			s.log.Error("processor run failed", zap.String("userID", userID), zap.Error(err))
		}
	}(req.UserID)

	writeJSON(w, http.StatusAccepted, processResponse{Success: true, UserID: req.UserID})
}

type devRequest struct {
	Action string `json:"action"`
	UserID string `json:"userId,omitempty"`
}

// handleDev serves manual inspection and force-testing actions. Hidden
// entirely outside development.
func (s *Server) handleDev(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.IsDevelopment() {
		http.NotFound(w, r)
		return
	}

	var req devRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	switch req.Action {
	case "list-eligible":
		s.devListEligible(w, r)
	case "user-status":
		s.devUserStatus(w, r, req.UserID)
	case "test-user":
		s.devTestUser(w, r, req.UserID)
	case "test-scheduler":
		s.handleRunScheduler(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
	}
}

type eligibleUser struct {
	UserID    string     `json:"userId"`
	NextDueAt *time.Time `json:"nextDueAt,omitempty"`
}

func (s *Server) devListEligible(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	due, err := s.repo.ListDue(r.Context(), now, 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	fresh, err := s.repo.ListUnscheduled(r.Context(), 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := struct {
		Due       []eligibleUser `json:"due"`
		Bootstrap []eligibleUser `json:"bootstrap"`
	}{Due: []eligibleUser{}, Bootstrap: []eligibleUser{}}
	for _, p := range due {
		resp.Due = append(resp.Due, eligibleUser{UserID: p.UserID, NextDueAt: p.NextDueAt})
	}
	for _, p := range fresh {
		resp.Bootstrap = append(resp.Bootstrap, eligibleUser{UserID: p.UserID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) devUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}
	prof, err := s.repo.GetProfile(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	msgs, err := s.repo.ListMessages(r.Context(), userID, 5)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type msgView struct {
		ID            string               `json:"id"`
		Status        string               `json:"status"`
		Type          domain.MessageType   `json:"type"`
		WasSent       bool                 `json:"wasSent"`
		Effectiveness int                  `json:"effectiveness"`
		FailureReason domain.FailureReason `json:"failureReason,omitempty"`
		CreatedAt     time.Time            `json:"createdAt"`
	}
	views := make([]msgView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, msgView{
			ID:            m.ID,
			Status:        m.Status,
			Type:          m.Type,
			WasSent:       m.WasSent,
			Effectiveness: m.EffectivenessRating,
			FailureReason: m.FailureReason,
			CreatedAt:     m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":        prof,
		"recentMessages": views,
	})
}

// devTestUser forces a synchronous processor run, bypassing eligibility.
func (s *Server) devTestUser(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ProcessTimeout)
	defer cancel()
	if err := s.proc.Process(ctx, userID, true); err != nil {
		writeJSON(w, http.StatusInternalServerError, processResponse{Success: false, UserID: userID, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{Success: true, UserID: userID})
}
