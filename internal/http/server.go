// Package http exposes the JSON API over the ledger service, billing and
// the advisory model.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"casacore/internal/advisory"
	"casacore/internal/billing"
	"casacore/internal/core"
	"casacore/internal/services"
)

// Advisor is the slice of the advisory surface the API needs. Nil means
// the model is not configured; those endpoints return 503.
type Advisor interface {
	AssetGrowthAdvice(ctx context.Context, asset core.Asset) (advisory.GrowthAdvice, error)
	ScanReceipt(ctx context.Context, image []byte, mimeType string) ([]advisory.ReceiptLine, error)
	Forecast(ctx context.Context, ops []core.FarmOperation) (advisory.FarmForecast, error)
}

type Server struct {
	http.Server
	ledger      *services.LedgerService
	billing     *billing.Service
	advisor     Advisor
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. billingSvc is never nil (an unconfigured service answers
// ErrNotConfigured); advisor may be nil.
func NewServer(addr string, ledger *services.LedgerService, billingSvc *billing.Service, advisor Advisor) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:      ledger,
		billing:     billingSvc,
		advisor:     advisor,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /api/dashboard", s.withSecurityHeaders(s.handleDashboard))

	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.withSecurityHeaders(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions/{id}", s.withSecurityHeaders(s.handleGetTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withSecurityHeaders(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/accounts", s.withSecurityHeaders(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts", s.withSecurityHeaders(s.handleCreateAccount))
	mux.HandleFunc("GET /api/accounts/{id}", s.withSecurityHeaders(s.handleGetAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.withSecurityHeaders(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/accounts/{id}/withdraw", s.withSecurityHeaders(s.handleWithdraw))
	mux.HandleFunc("POST /api/accounts/{id}/reconcile", s.withSecurityHeaders(s.handleReconcile))

	mux.HandleFunc("GET /api/assets", s.withSecurityHeaders(s.handleListAssets))
	mux.HandleFunc("POST /api/assets", s.withSecurityHeaders(s.handleSaveAsset))
	mux.HandleFunc("DELETE /api/assets/{id}", s.withSecurityHeaders(s.handleDeleteAsset))

	mux.HandleFunc("GET /api/bills", s.withSecurityHeaders(s.handleListBills))
	mux.HandleFunc("POST /api/bills", s.withSecurityHeaders(s.handleSaveBill))
	mux.HandleFunc("DELETE /api/bills/{id}", s.withSecurityHeaders(s.handleDeleteBill))
	mux.HandleFunc("POST /api/bills/{id}/paid", s.withSecurityHeaders(s.handleSetBillPaid))

	mux.HandleFunc("GET /api/deals", s.withSecurityHeaders(s.handleListDeals))
	mux.HandleFunc("POST /api/deals", s.withSecurityHeaders(s.handleSaveDeal))
	mux.HandleFunc("DELETE /api/deals/{id}", s.withSecurityHeaders(s.handleDeleteDeal))

	mux.HandleFunc("GET /api/farm-operations", s.withSecurityHeaders(s.handleListFarmOperations))
	mux.HandleFunc("POST /api/farm-operations", s.withSecurityHeaders(s.handleSaveFarmOperation))
	mux.HandleFunc("DELETE /api/farm-operations/{id}", s.withSecurityHeaders(s.handleDeleteFarmOperation))

	mux.HandleFunc("GET /api/family-members", s.withSecurityHeaders(s.handleListFamilyMembers))
	mux.HandleFunc("POST /api/family-members", s.withSecurityHeaders(s.handleSaveFamilyMember))
	mux.HandleFunc("DELETE /api/family-members/{id}", s.withSecurityHeaders(s.handleDeleteFamilyMember))

	mux.HandleFunc("GET /api/config", s.withSecurityHeaders(s.handleGetConfig))
	mux.HandleFunc("PUT /api/config", s.withSecurityHeaders(s.handleUpdateConfig))

	mux.HandleFunc("POST /api/billing/checkout", s.withSecurityHeaders(s.handleCheckout))
	mux.HandleFunc("POST /api/billing/portal", s.withSecurityHeaders(s.handlePortal))
	mux.HandleFunc("POST /api/billing/webhook", s.withSecurityHeaders(s.handleBillingWebhook))

	mux.HandleFunc("POST /api/advisory/asset-growth", s.withSecurityHeaders(s.handleAssetGrowth))
	mux.HandleFunc("POST /api/advisory/receipt-scan", s.withSecurityHeaders(s.handleReceiptScan))
	mux.HandleFunc("POST /api/advisory/farm-forecast", s.withSecurityHeaders(s.handleFarmForecast))

	mux.HandleFunc("GET /api/sync/stats", s.withSecurityHeaders(s.handleSyncStats))
	mux.HandleFunc("POST /api/sync/retry", s.withSecurityHeaders(s.handleSyncRetry))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		// Generate request ID for tracing
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Apply rate limiting to mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Create a custom response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// requireSuperAdmin gates operator endpoints on the configured role. Role
// comes from the config row, never from anything the client sends.
func (s *Server) requireSuperAdmin(w http.ResponseWriter, r *http.Request) bool {
	uc, err := s.ledger.GetUserConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if uc.Role != core.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, "operator role required")
		return false
	}
	return true
}

// requireActiveSubscription gates the premium advisory endpoints.
func (s *Server) requireActiveSubscription(w http.ResponseWriter, r *http.Request) bool {
	uc, err := s.ledger.GetUserConfig(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if uc.SubscriptionStatus != core.SubscriptionActive {
		writeError(w, http.StatusPaymentRequired, "active subscription required")
		return false
	}
	return true
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
