// ABOUTME: Minimal HTTP admin surface for triggering out-of-cycle retention actions
// ABOUTME: Every request must carry a valid Bearer JWT; actions are recorded to the audit store

package relayadmin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Retention is the subset of retention.Loop the admin handler drives.
type Retention interface {
	TriggerPrune(ctx context.Context, guildID string)
	TriggerCheckpoint(ctx context.Context, guildID string)
}

// AuditRecorder is the subset of adminstore.Store the handler writes to.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, e *AuditEntry) error
}

// AuditEntry mirrors adminstore.AuditEntry to avoid an import-cycle-prone
// dependency from relayadmin on adminstore's concrete type.
type AuditEntry struct {
	AuditID          string
	ActorPrincipalID string
	Action           string
	GuildID          string
	Detail           string
	Timestamp        time.Time
}

// IDGenerator produces audit entry identifiers.
type IDGenerator func() string

// Handler serves the relay's admin HTTP surface: JWT-gated endpoints that
// trigger an immediate prune or checkpoint for one guild, bypassing the
// retention loop's normal timer.
type Handler struct {
	verifier  TokenVerifier
	retention Retention
	audit     AuditRecorder
	newID     IDGenerator
	logger    *slog.Logger
}

// NewHandler builds an admin Handler.
func NewHandler(verifier TokenVerifier, retention Retention, audit AuditRecorder, newID IDGenerator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{verifier: verifier, retention: retention, audit: audit, newID: newID, logger: logger.With("component", "relayadmin")}
}

// Routes registers the admin endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/guilds/{guildID}/prune", h.authenticated(h.handlePrune))
	mux.HandleFunc("POST /admin/guilds/{guildID}/checkpoint", h.authenticated(h.handleCheckpoint))
}

func (h *Handler) authenticated(next func(w http.ResponseWriter, r *http.Request, principalID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r.Header.Get("Authorization"))
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		principalID, err := h.verifier.Verify(r.Context(), tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, principalID)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func (h *Handler) handlePrune(w http.ResponseWriter, r *http.Request, principalID string) {
	guildID := r.PathValue("guildID")
	h.retention.TriggerPrune(r.Context(), guildID)
	h.recordAudit(r.Context(), principalID, "prune_triggered", guildID)
	writeOK(w)
}

func (h *Handler) handleCheckpoint(w http.ResponseWriter, r *http.Request, principalID string) {
	guildID := r.PathValue("guildID")
	h.retention.TriggerCheckpoint(r.Context(), guildID)
	h.recordAudit(r.Context(), principalID, "checkpoint_triggered", guildID)
	writeOK(w)
}

func (h *Handler) recordAudit(ctx context.Context, principalID, action, guildID string) {
	if h.audit == nil {
		return
	}
	entry := &AuditEntry{
		AuditID:          h.newID(),
		ActorPrincipalID: principalID,
		Action:           action,
		GuildID:          guildID,
		Timestamp:        time.Now(),
	}
	if err := h.audit.RecordAudit(ctx, entry); err != nil {
		h.logger.Error("recording audit entry failed", "action", action, "guild_id", guildID, "err", err)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
