// Package admin exposes a small authenticated ops API mirroring the
// admin chat commands: minting redeem codes, granting and revoking
// plans, resetting usage, and inspecting a chat.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zamaraev97-gif/ai-bot/internal/models"
	"github.com/zamaraev97-gif/ai-bot/internal/service"
)

type Server struct {
	addr      string
	username  string
	password  string
	log       *slog.Logger
	plans     *service.PlanService
	assistant *service.Assistant
	router    *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, plans *service.PlanService, assistant *service.Assistant) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		username:  username,
		password:  password,
		log:       log,
		plans:     plans,
		assistant: assistant,
		router:    r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuth)
		protected.Post("/codes", s.handleCreateCodes)
		protected.Get("/codes/{code}", s.handleGetCode)
		protected.Post("/grants", s.handleGrant)
		protected.Delete("/grants/{chatID}", s.handleRevoke)
		protected.Post("/usage/{chatID}/reset", s.handleResetUsage)
		protected.Get("/chats/{chatID}", s.handleGetChat)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createCodesRequest struct {
	Plan  string `json:"plan"`
	Days  int    `json:"days"`
	Count int    `json:"count"`
}

func (s *Server) handleCreateCodes(w http.ResponseWriter, r *http.Request) {
	var req createCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	plan, err := models.ParsePlan(req.Plan)
	if err != nil {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}
	if req.Days < 0 {
		http.Error(w, "days must be non-negative", http.StatusBadRequest)
		return
	}
	codes, err := s.plans.GenerateCodes(r.Context(), plan, req.Days, req.Count)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"codes": codes})
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.plans.InspectCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if code == nil {
		http.Error(w, "code not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"code": code.Code,
		"plan": code.Plan,
		"days": code.Days,
		"used": code.Used,
	})
}

type grantRequest struct {
	ChatID int64  `json:"chat_id"`
	Plan   string `json:"plan"`
	Days   int    `json:"days"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	plan, err := models.ParsePlan(req.Plan)
	if err != nil {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}
	if req.ChatID == 0 {
		http.Error(w, "chat_id required", http.StatusBadRequest)
		return
	}
	if err := s.plans.Grant(r.Context(), req.ChatID, plan, req.Days); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	chatID, err := parseChatID(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}
	if err := s.plans.Revoke(r.Context(), chatID); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	chatID, err := parseChatID(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}
	if err := s.assistant.ResetToday(r.Context(), chatID); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := parseChatID(chi.URLParam(r, "chatID"))
	if err != nil {
		http.Error(w, "invalid chat id", http.StatusBadRequest)
		return
	}
	info, err := s.plans.Get(r.Context(), chatID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	usage, err := s.assistant.Usage(r.Context(), chatID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	resp := map[string]any{
		"chat_id":        chatID,
		"plan":           info.Plan,
		"effective_plan": info.Effective(time.Now()),
		"expires_at":     info.ExpiresAt,
		"usage":          usage,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write json", "err", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat id: %q", raw)
	}
	return id, nil
}
