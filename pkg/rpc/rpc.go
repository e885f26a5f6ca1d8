// Package rpc serves the ledger node API over HTTP and WebSocket.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/codycordova/codychain/pkg/auth"
	"github.com/codycordova/codychain/pkg/core"
)

// Config carries the collaborators the server is built from
type Config struct {
	ListenAddr string
	Ledger     *core.Ledger
	Auth       *auth.Manager
	Hub        *Hub
	Logger     *slog.Logger

	// CORSOrigin is the allowed origin for browser clients, "*" when empty
	CORSOrigin string
}

// Server serves the ledger API
type Server struct {
	listenAddr string
	ledger     *core.Ledger
	auth       *auth.Manager
	hub        *Hub
	router     *mux.Router
	httpServer *http.Server
	logger     *slog.Logger
	corsOrigin string
}

// NewServer creates the API server and registers its routes
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}

	server := &Server{
		listenAddr: cfg.ListenAddr,
		ledger:     cfg.Ledger,
		auth:       cfg.Auth,
		hub:        cfg.Hub,
		router:     mux.NewRouter(),
		logger:     logger,
		corsOrigin: corsOrigin,
	}

	server.router.Use(server.requestIDMiddleware, server.loggingMiddleware, server.corsMiddleware)
	server.registerRoutes()

	return server
}

// Handler returns the routed handler, for serving and for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("rpc server listening", "addr", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("rpc server stopped", "error", err)
		}
	}()

	return nil
}

// Stop closes live websocket sessions and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.rootHandler).Methods("GET")
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Ledger routes
	s.router.HandleFunc("/chain", s.chainHandler).Methods("GET")
	s.router.HandleFunc("/validate", s.validateHandler).Methods("GET")
	s.router.HandleFunc("/dev-users", s.devUsersHandler).Methods("GET")
	s.router.HandleFunc("/balances/{address}", s.balanceHandler).Methods("GET")
	s.router.HandleFunc("/transaction/new", s.newTransactionHandler).Methods("POST")
	s.router.HandleFunc("/mine", s.mineHandler).Methods("POST")

	// Auth routes
	if s.auth != nil {
		s.router.HandleFunc("/auth/challenge", s.authChallengeHandler).Methods("POST")
		s.router.HandleFunc("/auth/login", s.authLoginHandler).Methods("POST")
		s.router.HandleFunc("/auth/logout", s.authLogoutHandler).Methods("POST")
		s.router.HandleFunc("/auth/session", s.authSessionHandler).Methods("GET")
	}

	// Event stream
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")
	}

	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(s.preflightHandler)
}

// rootHandler greets API clients
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"message":      "Welcome to Codychain",
		"chain_length": s.ledger.Length(),
	}

	jsonResponse(w, response)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"blocks": s.ledger.Length(),
		"time":   time.Now().Unix(),
	}

	jsonResponse(w, response)
}

// chainHandler returns the full mined chain
func (s *Server) chainHandler(w http.ResponseWriter, r *http.Request) {
	chain := s.ledger.Chain()

	response := map[string]interface{}{
		"length": len(chain),
		"chain":  chain,
	}

	jsonResponse(w, response)
}

// validateHandler reports whether the chain passes integrity checks
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.CheckIntegrity(); err != nil {
		jsonResponse(w, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	jsonResponse(w, map[string]interface{}{"valid": true})
}

// devUsersHandler lists the registered dev users by address
func (s *Server) devUsersHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{"users": s.ledger.DevUsers()})
}

// balanceHandler returns the mined balance of an address
func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	response := map[string]interface{}{
		"address": address,
		"balance": s.ledger.BalanceOf(address),
	}

	jsonResponse(w, response)
}

// newTransactionHandler admits a transaction into the pending pool
func (s *Server) newTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&tx); err != nil {
		errorResponse(w, "Invalid transaction format", http.StatusBadRequest)
		return
	}

	admitted, err := s.ledger.AddTransaction(tx)
	if err != nil {
		errorResponse(w, err.Error(), statusForError(err))
		return
	}

	response := map[string]interface{}{
		"message":     "Transaction added to pending pool",
		"transaction": admitted,
	}

	jsonResponse(w, response)
}

// mineHandler mines the pending pool into a new block. A miner_address query
// parameter earns the reward transaction.
func (s *Server) mineHandler(w http.ResponseWriter, r *http.Request) {
	minerAddress := r.URL.Query().Get("miner_address")

	block, err := s.ledger.MinePending(r.Context(), minerAddress)
	if err != nil {
		errorResponse(w, err.Error(), statusForError(err))
		return
	}

	response := map[string]interface{}{
		"message": "New block mined",
		"block":   block,
	}

	jsonResponse(w, response)
}

type challengeRequest struct {
	Username string `json:"username"`
}

type loginRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Signature      string `json:"signature"`
}

type logoutRequest struct {
	SessionToken string `json:"session_token"`
}

// authChallengeHandler issues a login challenge for a dev user
func (s *Server) authChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		errorResponse(w, "username required", http.StatusBadRequest)
		return
	}

	challenge, err := s.auth.NewChallenge(req.Username)
	if err != nil {
		errorResponse(w, err.Error(), authStatus(err))
		return
	}

	jsonResponse(w, challenge)
}

// authLoginHandler exchanges a signed challenge for a session token
func (s *Server) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeToken == "" || req.Signature == "" {
		errorResponse(w, "challenge_token and signature required", http.StatusBadRequest)
		return
	}

	session, err := s.auth.Login(req.ChallengeToken, req.Signature)
	if err != nil {
		errorResponse(w, err.Error(), authStatus(err))
		return
	}

	jsonResponse(w, session)
}

// authLogoutHandler ends a session. The token comes from the Authorization
// header or the request body.
func (s *Server) authLogoutHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		var req logoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.SessionToken
		}
	}
	if token == "" {
		errorResponse(w, "session token required", http.StatusBadRequest)
		return
	}

	if !s.auth.Logout(token) {
		errorResponse(w, "Unknown session", http.StatusNotFound)
		return
	}

	jsonResponse(w, map[string]interface{}{"message": "Logged out"})
}

// authSessionHandler reports the user behind a session token
func (s *Server) authSessionHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		errorResponse(w, "Authorization bearer token required", http.StatusUnauthorized)
		return
	}

	username, ok := s.auth.VerifySession(token)
	if !ok {
		errorResponse(w, "Invalid or expired session", http.StatusUnauthorized)
		return
	}

	jsonResponse(w, map[string]interface{}{"username": username})
}

// statusForError maps ledger errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrUnknownSigner),
		errors.Is(err, core.ErrInvalidProof):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrMiningCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// authStatus maps auth errors onto HTTP status codes
func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnknownChallenge),
		errors.Is(err, auth.ErrChallengeExpired),
		errors.Is(err, auth.ErrSignatureMismatch):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// bearerToken extracts a bearer token from the Authorization header
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

// jsonResponse sends a JSON response
func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// errorResponse sends an error response
func errorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error": message,
	}

	json.NewEncoder(w).Encode(response)
}
