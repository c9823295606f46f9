package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/service"
)

// RunningCounter reports transfers in flight on this instance.
type RunningCounter interface {
	Running() int
}

type Server struct {
	addr      string
	username  string
	password  string
	log       *slog.Logger
	accounts  *service.AccountService
	plans     *service.PlanService
	transfers *service.TransferService
	running   RunningCounter
	validate  *validator.Validate
	router    *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, accounts *service.AccountService, plans *service.PlanService, transfers *service.TransferService, running RunningCounter) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		username:  username,
		password:  password,
		log:       log,
		accounts:  accounts,
		plans:     plans,
		transfers: transfers,
		running:   running,
		validate:  validator.New(),
		router:    r,
	}
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/stats", s.handleStats)
		protected.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAccount)
			r.Get("/transfers", s.handleListTransfers)
			r.Put("/plan", s.handleAssignPlan)
		})
		protected.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Put("/{tier}", s.handleUpdatePlan)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	accounts, active, err := s.accounts.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	running := 0
	if s.running != nil {
		running = s.running.Running()
	}
	s.writeJSON(w, http.StatusOK, map[string]int{
		"accounts":          accounts,
		"active_operations": active,
		"running_transfers": running,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	acc, err := s.accounts.Find(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if acc == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}
	logs, err := s.transfers.History(r.Context(), id, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if logs == nil {
		logs = []models.TransferLog{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAssignPlan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req assignPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(w, err)
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.Days != nil {
		t := time.Now().UTC().AddDate(0, 0, *req.Days)
		expiresAt = &t
	}
	acc, err := s.accounts.AssignPlan(r.Context(), id, models.PlanTier(req.Plan), expiresAt)
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	tier := models.PlanTier(strings.ToLower(chi.URLParam(r, "tier")))
	var req planUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.badRequest(w, err)
		return
	}
	plan, err := s.plans.Update(r.Context(), tier, service.UpdatePlanInput{
		Title:        req.Title,
		DailyLimitGB: req.DailyLimitGB,
		Parallel:     req.Parallel,
		Price:        req.Price,
		IsActive:     req.IsActive,
	})
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || s.password == "" || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="renamebot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

type assignPlanRequest struct {
	Plan      string     `json:"plan" validate:"required,oneof=free silver gold"`
	ExpiresAt *time.Time `json:"expires_at"`
	Days      *int       `json:"days" validate:"omitempty,gt=0"`
}

type planUpdateRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1"`
	DailyLimitGB *int64  `json:"daily_limit_gb" validate:"omitempty,gt=0"`
	Parallel     *int    `json:"parallel" validate:"omitempty,gt=0"`
	Price        *string `json:"price"`
	IsActive     *bool   `json:"is_active"`
}
