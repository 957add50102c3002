// Package api provides the HTTP handlers for creating games, starting
// trading rounds, submitting actions, and querying game state.
//
// The engine itself is transport-free; this package is the adapter between
// chi routes and the game package, and between games and their persisted
// snapshots.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rails-18xx/Rails-sub009/internal/game"
	"github.com/Rails-18xx/Rails-sub009/internal/metrics"
	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/store"
)

// Service handles game operations. A mutex serializes action processing:
// the engine is single-threaded by design, and games are small enough that
// one lock for all of them keeps reasoning simple (single-instance; for
// horizontal scaling, shard games across instances).
type Service struct {
	store store.Store
	log   *slog.Logger
	hub   *WSHub // optional WebSocket hub for real-time broadcasts

	mu    sync.Mutex
	games map[string]*game.Game
}

// NewService creates a new game service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, hub *WSHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: st,
		log:   logger,
		hub:   hub,
		games: make(map[string]*game.Game),
	}
}

// Routes mounts the service's endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/games", s.ListGames)
	r.Post("/games", s.CreateGame)
	r.Get("/games/{gameID}", s.GetGame)
	r.Delete("/games/{gameID}", s.DeleteGame)
	r.Get("/games/{gameID}/legal", s.GetLegalActions)
	r.Post("/games/{gameID}/actions", s.SubmitAction)
	r.Post("/games/{gameID}/rounds", s.StartRound)
	r.Get("/games/{gameID}/market", s.GetMarket)
	r.Get("/games/{gameID}/players/{playerID}", s.GetPlayer)
	r.Get("/games/{gameID}/log", s.GetActionLog)
}

// persist snapshots the game and saves it; failures are logged, not fatal to
// the request, because the in-memory game has already advanced.
func (s *Service) persist(r *http.Request, g *game.Game) {
	snap, err := g.Snapshot()
	if err != nil {
		s.log.Error("snapshot failed", "game", g.ID, "err", err)
		return
	}
	if err := s.store.SaveGame(r.Context(), snap); err != nil {
		s.log.Error("save failed", "game", g.ID, "err", err)
	}
}

// --- Request/response types ---

// StartRoundRequest is the JSON body for POST /games/{gameID}/rounds.
type StartRoundRequest struct {
	Kind game.RoundKind `json:"kind"`
	// Player starts a stock round (the priority holder) or names the
	// forced seller.
	Player string `json:"player,omitempty"`
	// CashTarget is the amount a forced seller must reach.
	CashTarget int64 `json:"cash_target,omitempty"`
	// Company is the acting company of a treasury round.
	Company string `json:"company,omitempty"`
}

// GameView is the full state projection returned by GET /games/{gameID}.
type GameView struct {
	ID        string        `json:"id"`
	Players   []PlayerView  `json:"players"`
	Companies []CompanyView `json:"companies"`
	Round     *game.Round   `json:"round,omitempty"`
	GameOver  bool          `json:"game_over"`
}

// PlayerView is one player's public state.
type PlayerView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Cash         int64          `json:"cash"`
	Bankrupt     bool           `json:"bankrupt,omitempty"`
	Certificates []CertView     `json:"certificates"`
	Shares       map[string]int `json:"shares"`
	CertWeight   string         `json:"cert_weight"`
}

// CertView is one certificate in a holder's portfolio.
type CertView struct {
	ID        string `json:"id"`
	Company   string `json:"company"`
	Shares    int    `json:"shares"`
	President bool   `json:"president,omitempty"`
}

// CompanyView is one company's public state.
type CompanyView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Started  bool           `json:"started"`
	Floated  bool           `json:"floated"`
	Closed   bool           `json:"closed"`
	ParPrice int64          `json:"par_price,omitempty"`
	Price    int64          `json:"price,omitempty"`
	Treasury int64          `json:"treasury"`
	Holdings map[string]int `json:"holdings"`
}

// --- HTTP handlers ---

// CreateGame handles POST /api/v1/games. The body is the full game
// configuration: players, companies, grid, and rules.
func (s *Service) CreateGame(w http.ResponseWriter, r *http.Request) {
	var cfg game.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	g, err := game.New(cfg, s.log)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
	metrics.ActiveGames.Set(float64(len(s.games)))
	s.persist(r, g)

	s.log.Info("game created", "game", g.ID, "players", len(cfg.Players), "companies", len(cfg.Companies))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.gameView(g))
}

// ListGames handles GET /api/v1/games.
func (s *Service) ListGames(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListGames(r.Context())
	if err != nil {
		writeError(w, "failed to list games", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []store.GameSummary{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// GetGame handles GET /api/v1/games/{gameID}.
func (s *Service) GetGame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.gameView(g))
}

// DeleteGame handles DELETE /api/v1/games/{gameID}.
func (s *Service) DeleteGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "gameID")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteGame(r.Context(), id); err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	delete(s.games, id)
	metrics.ActiveGames.Set(float64(len(s.games)))
	w.WriteHeader(http.StatusNoContent)
}

// GetLegalActions handles GET /api/v1/games/{gameID}/legal.
func (s *Service) GetLegalActions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	la, err := g.LegalActions()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(la)
}

// SubmitAction handles POST /api/v1/games/{gameID}/actions. A rejected
// action returns its reason and leaves the game untouched; re-submitting the
// identical action yields the identical rejection.
func (s *Service) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var a game.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	start := time.Now()
	res, err := g.Process(a)
	metrics.ActionLatency.WithLabelValues(string(a.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ActionRejections.WithLabelValues(string(a.Type)).Inc()
		writeEngineError(w, err)
		return
	}
	metrics.ActionsTotal.WithLabelValues(string(a.Type)).Inc()
	if res.Bankrupt {
		metrics.Bankruptcies.Inc()
	}

	s.persist(r, g)
	if err := s.store.AppendResult(r.Context(), g.ID, res); err != nil {
		s.log.Error("action log append failed", "game", g.ID, "err", err)
	}

	if s.hub != nil {
		msg := WSMessage{
			Type:          "action_applied",
			GameID:        g.ID,
			ActionID:      res.ActionID,
			Player:        a.Player,
			Company:       a.Company,
			Changes:       len(res.Changes),
			RoundFinished: res.RoundFinished,
			GameOver:      g.GameOver(),
		}
		if rd := g.Round(); rd != nil {
			msg.RoundKind = string(rd.Kind)
		}
		s.hub.Broadcast(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// StartRound handles POST /api/v1/games/{gameID}/rounds.
func (s *Service) StartRound(w http.ResponseWriter, r *http.Request) {
	var req StartRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}

	var round *game.Round
	switch req.Kind {
	case game.StockRound:
		round, err = g.StartStockRound(req.Player)
	case game.ForcedSaleRound:
		round, err = g.StartForcedSaleRound(req.Player, req.CashTarget)
	case game.TreasuryRound:
		round, err = g.StartTreasuryRound(req.Company)
	default:
		writeError(w, "unknown round kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.RoundsStarted.WithLabelValues(string(req.Kind)).Inc()
	s.persist(r, g)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:      "round_started",
			GameID:    g.ID,
			RoundKind: string(round.Kind),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(round)
}

// GetMarket handles GET /api/v1/games/{gameID}/market: the grid plus token
// positions.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	m := g.Market()
	tokens := make(map[string]any)
	for _, cid := range g.Companies() {
		if pos, ok := m.PositionOf(cid); ok {
			tokens[cid] = pos
		}
	}
	resp := map[string]any{
		"grid":   m.Grid(),
		"tokens": tokens,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetPlayer handles GET /api/v1/games/{gameID}/players/{playerID}.
func (s *Service) GetPlayer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.liveGame(r, chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "game not found", http.StatusNotFound)
		return
	}
	p, ok := g.Player(chi.URLParam(r, "playerID"))
	if !ok {
		writeError(w, "player not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.playerView(g, p.ID))
}

// GetActionLog handles GET /api/v1/games/{gameID}/log: every applied action
// with its reversible change records, in order.
func (s *Service) GetActionLog(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.GetResults(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, "failed to load action log", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []game.Result{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// --- View builders ---

func (s *Service) gameView(g *game.Game) GameView {
	view := GameView{ID: g.ID, Round: g.Round(), GameOver: g.GameOver()}
	for _, p := range g.Players() {
		view.Players = append(view.Players, s.playerView(g, p.ID))
	}
	for _, cid := range g.Companies() {
		c, _ := g.Company(cid)
		cv := CompanyView{
			ID:       c.ID,
			Name:     c.Name,
			Started:  c.Started,
			Floated:  c.Floated,
			Closed:   c.Closed,
			ParPrice: c.ParPrice,
			Treasury: g.Ledger().Balance(model.TreasuryKey(cid)),
			Holdings: g.ShareBreakdown(cid),
		}
		if price, ok := g.Market().PriceOf(cid); ok {
			cv.Price = price
		}
		view.Companies = append(view.Companies, cv)
	}
	return view
}

func (s *Service) playerView(g *game.Game, playerID string) PlayerView {
	p, _ := g.Player(playerID)
	key := model.PlayerKey(playerID)
	pv := PlayerView{
		ID:         p.ID,
		Name:       p.Name,
		Bankrupt:   p.Bankrupt,
		Cash:       g.Ledger().Balance(key),
		Shares:     make(map[string]int),
		CertWeight: g.Portfolios().CertWeight(key, nil).String(),
	}
	certs, err := g.Portfolios().Certificates(key)
	if err == nil {
		for _, c := range certs {
			pv.Certificates = append(pv.Certificates, CertView{
				ID: c.ID, Company: c.Company, Shares: c.Shares, President: c.President,
			})
			pv.Shares[c.Company] += c.Shares
		}
	}
	return pv
}

// liveGame returns the cached game or restores it from the store. Caller
// must hold s.mu.
func (s *Service) liveGame(r *http.Request, id string) (*game.Game, error) {
	if g, ok := s.games[id]; ok {
		return g, nil
	}
	snap, err := s.store.GetGame(r.Context(), id)
	if err != nil {
		return nil, err
	}
	g, err := game.RestoreGame(snap, s.log)
	if err != nil {
		return nil, err
	}
	s.games[id] = g
	metrics.ActiveGames.Set(float64(len(s.games)))
	return g, nil
}

// writeEngineError maps engine errors onto HTTP statuses: validation
// rejections are conflicts, unknown entities are 404s, corruption is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrUnknownPlayer),
		errors.Is(err, game.ErrUnknownCompany),
		errors.Is(err, game.ErrUnknownSpecial):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, game.ErrCorruptState):
		writeError(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, game.ErrInvalidAmount), errors.Is(err, game.ErrInvalidPar):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusConflict)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
