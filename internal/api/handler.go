// Package api provides the local HTTP facade the companion UI attaches to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/asthmacare/companion/internal/assessment"
	"github.com/asthmacare/companion/internal/conversation"
	"github.com/asthmacare/companion/internal/domain"
	"github.com/asthmacare/companion/internal/gateway"
	"github.com/asthmacare/companion/internal/session"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the companion core over local HTTP.
type Handler struct {
	sessions *session.Manager
	engine   *conversation.Engine
	gw       gateway.Client
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *session.Manager, engine *conversation.Engine, gw gateway.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		engine:   engine,
		gw:       gw,
		logger:   logger,
	}
}

// RegisterRoutes mounts all facade routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/signup", h.handleSignup)
	r.Post("/api/logout", h.handleLogout)
	r.Get("/api/session", h.handleSession)

	r.Get("/api/chat/messages", h.handleListMessages)
	r.Post("/api/chat/messages", h.handleSendMessage)
	r.Get("/api/chat/form", h.handleFormState)
	r.Post("/api/chat/assessment", h.handleSubmitAssessment)

	r.Get("/api/dashboard", h.handleDashboard)
	r.Get("/api/chat/ws", h.handleEventStream)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type credentialsRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.sessions.Login(r.Context(), req.Username, req.Password); err != nil {
		if reason, ok := gateway.IsRejection(err); ok {
			Error(w, http.StatusUnauthorized, reason)
			return
		}
		h.logger.Warn("login failed", "error", err)
		Error(w, http.StatusBadGateway, "could not reach the AsthmaCare service")
		return
	}

	JSON(w, http.StatusOK, h.sessions.Current())
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.sessions.Signup(r.Context(), req.Username, req.Password, req.ConfirmPassword); err != nil {
		if reason, ok := gateway.IsRejection(err); ok {
			Error(w, http.StatusBadRequest, reason)
			return
		}
		h.logger.Warn("signup failed", "error", err)
		Error(w, http.StatusBadGateway, "could not reach the AsthmaCare service")
		return
	}

	JSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Logout is always locally effective, even when the remote call fails.
	h.sessions.Logout(r.Context())
	JSON(w, http.StatusOK, h.sessions.Current())
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessions.Current())
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "message content is empty")
		return
	}

	h.engine.SendUserMessage(req.Content)
	JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages": h.engine.Messages(),
		"typing":   h.engine.Typing(),
	})
}

func (h *Handler) handleFormState(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"form": string(h.engine.FormState())})
}

func (h *Handler) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var report domain.SymptomReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.engine.SubmitAssessment(r.Context(), report)
	if err != nil {
		if errors.Is(err, conversation.ErrNoOpenForm) {
			Error(w, http.StatusConflict, "no symptom form is open")
			return
		}
		if errors.Is(err, conversation.ErrSubmissionInFlight) {
			Error(w, http.StatusConflict, "an assessment is already being processed")
			return
		}
		// The form stays open server-side; tell the UI to offer a retry.
		h.logger.Warn("assessment submission failed", "error", err)
		Error(w, http.StatusBadGateway, "failed to process your assessment, please try again")
		return
	}

	JSON(w, http.StatusOK, msg)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.IsAuthenticated {
		Error(w, http.StatusUnauthorized, "please log in to view your dashboard")
		return
	}

	summary, err := h.fetchSummary(r.Context(), sess.Username)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			Error(w, http.StatusUnauthorized, "please log in to view your dashboard")
			return
		}
		h.logger.Warn("dashboard fetch failed", "error", err)
		Error(w, http.StatusBadGateway, "failed to load your assessment data")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"empty":      summary.Empty(),
		"records":    summary.Records,
		"buckets":    summary.Buckets(),
		"comparison": summary.Comparison,
	})
}

func (h *Handler) fetchSummary(ctx context.Context, username string) (assessment.Summary, error) {
	records, err := h.gw.FetchHistory(ctx, username)
	if err != nil {
		return assessment.Summary{}, err
	}
	return assessment.Aggregate(records, username), nil
}
