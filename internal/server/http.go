package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/auth"
	"github.com/hodlwarz/arena/internal/bridge"
	"github.com/hodlwarz/arena/internal/cache"
	"github.com/hodlwarz/arena/internal/config"
	"github.com/hodlwarz/arena/internal/leaderboard"
	"github.com/hodlwarz/arena/internal/ledger"
	"github.com/hodlwarz/arena/internal/sim"
	"github.com/hodlwarz/arena/internal/store"
)

const ticketTTL = 24 * time.Hour

type Server struct {
	cfg     *config.Config
	db      *pgxpool.Pool // nil in local-only mode
	rdb     *redis.Client // nil in local-only mode
	hub     *Hub
	engine  *sim.Engine
	ledger  ledger.Client
	season  *bridge.SeasonController
	logger  *slog.Logger
	mux     *http.ServeMux
	metrics *Metrics

	combatants  *store.CombatantStore // nil in local-only mode
	attacks     *store.AttackLog      // nil in local-only mode
	seasons     *store.SeasonStore    // nil in local-only mode
	snapshots   *cache.Snapshots      // nil in local-only mode
	leaderboard *leaderboard.Service  // nil in local-only mode
}

func New(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, hub *Hub, engine *sim.Engine, lc ledger.Client, season *bridge.SeasonController, metrics *Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		rdb:     rdb,
		hub:     hub,
		engine:  engine,
		ledger:  lc,
		season:  season,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics,
	}
	if db != nil {
		s.combatants = store.NewCombatantStore(db)
		s.attacks = store.NewAttackLog(db)
		s.seasons = store.NewSeasonStore(db)
	}
	if rdb != nil {
		s.snapshots = cache.NewSnapshots(rdb, 5*time.Second)
		s.leaderboard = leaderboard.NewService(rdb)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	s.mux.Handle("GET /ws", s.hub)

	s.mux.HandleFunc("POST /api/auth/ticket", s.handleTicket)

	// Arena endpoints
	s.mux.HandleFunc("GET /api/arena/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/abilities", s.handleAbilities)
	s.mux.HandleFunc("GET /api/combatant/{addr}", s.handleGetCombatant)
	s.mux.HandleFunc("GET /api/combatant/{addr}/attacks", s.handleRecentAttacks)
	s.mux.HandleFunc("GET /api/combatants", s.handleListCombatants)

	// Leaderboard endpoints
	s.mux.HandleFunc("GET /api/leaderboard/kills", s.handleKillLeaderboard)
	s.mux.HandleFunc("GET /api/leaderboard/xp", s.handleXPLeaderboard)
	s.mux.HandleFunc("GET /api/leaderboard/rank/{addr}", s.handleCombatantRank)

	// Admin
	s.mux.HandleFunc("POST /api/admin/season/reset", s.handleSeasonReset)

	// Static files for the viewer
	s.mux.Handle("GET /", http.FileServer(http.Dir("web")))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["db"] = "down"
			status["status"] = "degraded"
		} else {
			status["db"] = "ok"
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = "down"
			status["status"] = "degraded"
		} else {
			status["redis"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

// handleTicket mints a websocket ticket for an address. Ownership proof
// (wallet signature verification) lives outside this subsystem; anything
// claiming an address gets a ticket for it.
func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{
		"ticket": auth.Ticket(req.Address, s.cfg.TicketSecret, ticketTTL),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Snapshot(time.Now()))
}

func (s *Server) handleAbilities(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID       int     `json:"id"`
		Name     string  `json:"name"`
		Tree     string  `json:"tree"`
		MaxRank  int     `json:"max_rank"`
		PerRank  float64 `json:"per_rank"`
		Requires *int    `json:"requires,omitempty"`
		Capstone bool    `json:"capstone"`
	}
	defs := ability.All()
	out := make([]entry, 0, len(defs))
	for _, d := range defs {
		e := entry{
			ID:       int(d.ID),
			Name:     d.Name,
			Tree:     d.Tree.String(),
			MaxRank:  d.MaxRank,
			PerRank:  d.PerRank,
			Capstone: d.Capstone,
		}
		if d.ReqRank > 0 {
			req := int(d.Requires)
			e.Requires = &req
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

// handleGetCombatant serves the ledger's view, the authoritative one.
func (s *Server) handleGetCombatant(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	snap, err := s.ledger.GetState(r.Context(), addr)
	if err != nil {
		if _, rejected := ledger.RejectionReason(err); rejected {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleRecentAttacks(w http.ResponseWriter, r *http.Request) {
	if s.attacks == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	addr := r.PathValue("addr")
	records, err := s.attacks.Recent(r.Context(), addr, 50)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleListCombatants(w http.ResponseWriter, r *http.Request) {
	if s.combatants == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.combatants.List(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleKillLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, func(ctx context.Context, seasonID string, count int64) ([]leaderboard.Entry, error) {
		return s.leaderboard.TopKills(ctx, seasonID, count)
	})
}

func (s *Server) handleXPLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, func(ctx context.Context, seasonID string, count int64) ([]leaderboard.Entry, error) {
		return s.leaderboard.TopXP(ctx, seasonID, count)
	})
}

func (s *Server) serveLeaderboard(w http.ResponseWriter, r *http.Request, top func(context.Context, string, int64) ([]leaderboard.Entry, error)) {
	if s.leaderboard == nil || s.seasons == nil {
		writeJSON(w, []any{})
		return
	}
	season, err := s.seasons.Active(r.Context())
	if err != nil || season == nil {
		writeJSON(w, []any{})
		return
	}
	count := int64(50)
	if c := r.URL.Query().Get("count"); c != "" {
		if n, err := strconv.ParseInt(c, 10, 64); err == nil && n > 0 && n <= 100 {
			count = n
		}
	}
	entries, err := top(r.Context(), season.ID, count)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleCombatantRank(w http.ResponseWriter, r *http.Request) {
	if s.leaderboard == nil || s.seasons == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	season, err := s.seasons.Active(r.Context())
	if err != nil || season == nil {
		http.Error(w, "no active season", http.StatusNotFound)
		return
	}
	entry, err := s.leaderboard.CombatantRank(r.Context(), season.ID, r.PathValue("addr"))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "not ranked", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

// handleSeasonReset runs the full season boundary: ledger resets, local
// resets, queue and cache clears, then a fresh season row.
func (s *Server) handleSeasonReset(w http.ResponseWriter, r *http.Request) {
	if err := auth.ValidateAdmin(r.Header.Get("X-Admin-Token"), s.cfg.AdminToken); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var oldSeason string
	if s.seasons != nil {
		if season, err := s.seasons.Active(r.Context()); err == nil && season != nil {
			oldSeason = season.ID
		}
	}

	resets, fails, err := s.season.Reset(r.Context(), time.Now())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.leaderboard != nil && oldSeason != "" {
		if err := s.leaderboard.ResetSeason(r.Context(), oldSeason); err != nil {
			s.logger.Warn("leaderboard reset", "err", err)
		}
	}
	if s.snapshots != nil {
		if err := s.snapshots.Clear(r.Context()); err != nil {
			s.logger.Warn("snapshot cache clear", "err", err)
		}
	}

	newID := uuid.NewString()
	if s.seasons != nil {
		if _, err := s.seasons.Begin(r.Context(), newID); err != nil {
			s.logger.Error("begin season", "err", err)
		}
	}

	writeJSON(w, map[string]any{
		"season":        newID,
		"ledger_resets": resets,
		"ledger_fails":  fails,
	})
}

func (s *Server) Handler() http.Handler {
	limiter := NewRateLimiter(30, 60)
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(limiter, s.logger),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
