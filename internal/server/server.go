// Package server exposes the routing engine over HTTP. The transport stays
// thin: it normalizes the wire request, delegates to the router and maps
// tagged outcomes onto status codes.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/config"
	"github.com/chofesh/model-gateway/internal/credit"
	"github.com/chofesh/model-gateway/internal/gating"
	"github.com/chofesh/model-gateway/internal/health"
	"github.com/chofesh/model-gateway/internal/provider"
	"github.com/chofesh/model-gateway/internal/routing"
)

// RouteHandler resolves one normalized request. Satisfied by
// *routing.Router and by fakes in tests.
type RouteHandler interface {
	Route(ctx context.Context, req *routing.Request) (*routing.Response, error)
}

// Server represents the HTTP server.
type Server struct {
	cfg        *config.Config
	router     RouteHandler
	cat        *catalog.Catalog
	tracker    *health.Tracker
	ledger     *credit.Ledger
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger
}

// New creates a new HTTP server.
func New(cfg *config.Config, router RouteHandler, cat *catalog.Catalog, tracker *health.Tracker, ledger *credit.Ledger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		router:    router,
		cat:       cat,
		tracker:   tracker,
		ledger:    ledger,
		startTime: time.Now(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/models", s.handleModels)
	mux.HandleFunc("/api/v1/providers/health", tracker.Handler())
	mux.HandleFunc("/api/v1/credits", s.handleCredits)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}
	return s
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ChatRequest is the wire shape of a routing request.
type ChatRequest struct {
	UserID        string            `json:"user_id"`
	Messages      []ChatMessage     `json:"messages"`
	Images        []ImageAttachment `json:"images,omitempty"`
	Model         string            `json:"model,omitempty"`
	Uncensored    bool              `json:"uncensored"`
	AgeVerified   bool              `json:"age_verified"`
	GenerateImage bool              `json:"generate_image"`
	Temperature   float64           `json:"temperature,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ImageAttachment carries base64 image bytes.
type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ChatResponse is the wire shape of a successful routing outcome.
type ChatResponse struct {
	Content        string `json:"content,omitempty"`
	ImageB64       string `json:"image_b64,omitempty"`
	Model          string `json:"model"`
	CreditsCharged int64  `json:"credits_charged"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
	Attempts       int    `json:"attempts"`
}

// ErrorResponse is the wire shape of a tagged failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wire ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if wire.UserID == "" || len(wire.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "user_id and messages are required"})
		return
	}

	req := s.normalize(&wire)
	resp, err := s.router.Route(r.Context(), req)
	if err != nil {
		status, kind := statusFor(err)
		s.logger.Warn("request failed", "user", wire.UserID, "kind", kind, "error", err.Error())
		writeJSON(w, status, ErrorResponse{Error: kind, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Content:        resp.Content,
		ImageB64:       resp.ImageB64,
		Model:          resp.ServedBy,
		CreditsCharged: resp.CreditsCharged,
		TokensUsed:     resp.Usage.TotalTokens,
		Attempts:       resp.Attempts,
	})
}

// normalize converts the wire request into the router's contract, deriving
// modalities from the payload and the desired tier from the uncensored
// toggle plus the keyword hint.
func (s *Server) normalize(wire *ChatRequest) *routing.Request {
	messages := make([]provider.Message, 0, len(wire.Messages))
	var lastUser string
	for _, m := range wire.Messages {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
		if m.Role == "user" {
			lastUser = m.Content
		}
	}
	images := make([]provider.ImageAttachment, 0, len(wire.Images))
	for _, img := range wire.Images {
		images = append(images, provider.ImageAttachment{MediaType: img.MediaType, Data: img.Data})
	}

	modalities := []catalog.Modality{catalog.ModalityText}
	if wire.GenerateImage {
		modalities = []catalog.Modality{catalog.ModalityImageGen}
	}
	if len(images) > 0 {
		modalities = append(modalities, catalog.ModalityVision)
	}

	tier := catalog.TierStandard
	if wire.Uncensored {
		tier = catalog.TierRestricted
	} else if hint := gating.DetectRestrictedHint(lastUser); hint.Restricted && hint.Confidence == gating.ConfidenceHigh {
		// The hint steers chain ordering toward uncensored-capable models.
		// Access still hinges on the age_verified fact inside gating.
		tier = catalog.TierRestricted
	}

	return &routing.Request{
		UserID:            wire.UserID,
		Messages:          messages,
		Images:            images,
		ContentModalities: modalities,
		DesiredPolicyTier: tier,
		ExplicitModelID:   wire.Model,
		AgeVerified:       wire.AgeVerified,
		PromptFingerprint: fingerprint(messages),
		Temperature:       wire.Temperature,
		MaxTokens:         wire.MaxTokens,
	}
}

// ModelInfo is one catalog entry in API responses.
type ModelInfo struct {
	ID         string   `json:"id"`
	Family     string   `json:"family"`
	Modalities []string `json:"modalities"`
	Tier       string   `json:"tier"`
	CreditCost int64    `json:"credit_cost"`
	Priority   int      `json:"priority"`
}

// handleModels lists the catalog. Restricted-tier entries only show up for
// age-verified callers, mirroring what routing would actually offer them.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ageVerified := r.URL.Query().Get("age_verified") == "true"
	models := gating.FilterEligible(s.cat.All(), gating.Facts{AgeVerified: ageVerified})
	out := make([]ModelInfo, 0, len(models))
	for _, d := range models {
		modalities := make([]string, 0, len(d.Modalities))
		for _, m := range d.Modalities {
			modalities = append(modalities, string(m))
		}
		out = append(out, ModelInfo{
			ID:         d.ID,
			Family:     string(d.Family),
			Modalities: modalities,
			Tier:       string(d.Tier),
			CreditCost: d.CreditCost,
			Priority:   d.Priority,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// BalanceResponse reports an account's spendable credits.
type BalanceResponse struct {
	UserID    string `json:"user_id"`
	Free      int64  `json:"free"`
	Purchased int64  `json:"purchased"`
	Total     int64  `json:"total"`
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "user_id is required"})
		return
	}
	acct, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:    userID,
		Free:      acct.Free,
		Purchased: acct.Purchased,
		Total:     acct.Total(),
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func statusFor(err error) (int, string) {
	kind := routing.KindOf(err)
	switch kind {
	case routing.KindGatingDenied:
		return http.StatusForbidden, string(kind)
	case routing.KindCapabilityMismatch:
		return http.StatusBadRequest, string(kind)
	case routing.KindInsufficientCredits:
		return http.StatusPaymentRequired, string(kind)
	case routing.KindNoEligibleModel:
		return http.StatusNotFound, string(kind)
	case routing.KindProviderExhausted:
		return http.StatusBadGateway, string(kind)
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func fingerprint(messages []provider.Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Encode error", http.StatusInternalServerError)
	}
}
