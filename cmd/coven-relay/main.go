// ABOUTME: Entry point for the Commons Guild Protocol relay
// ABOUTME: Serves the websocket wire protocol, runs retention, exposes the admin and metrics surfaces

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/adminstore"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/config"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/engine"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/metrics"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/relayadmin"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/retention"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store/boltstore"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/wire"
)

var version = "dev"

const banner = `
                                            _
  ___ _____   _____ _ __        __ _  __ _| |_ _____      ____ _ _   _
 / __/ _ \ \ / / _ \ '_ \ _____/ _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_) \ V /  __/ | | |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\___/ \_/ \___|_| |_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                |___/                             |___/
`

func getConfigPath() string {
	if p := os.Getenv("COVEN_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "coven", "relay.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-relay <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the relay server")
		fmt.Println("  init    Create a default config file")
		fmt.Println("  health  Check relay health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServe wires every component together: the store, the sequencing
// engine, the websocket hub, the retention loop, and the admin/metrics
// HTTP surface. PORT and DB, per the relay's CLI contract, take priority
// over whatever a config file on disk says.
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	clean := fs.Bool("clean", false, "wipe the DB path before starting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	port := envOr("PORT", "7447")
	dbPath := envOr("DB", "./relay-db")

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
		if err := applyDefaultDurations(cfg); err != nil {
			return fmt.Errorf("parsing default retention intervals: %w", err)
		}
	}
	// /ws, /metrics, /health, and the admin routes all share one
	// http.Server, so PORT controls the single listen address both
	// fields name.
	cfg.Server.HTTPAddr = ":" + port
	cfg.Server.WSAddr = cfg.Server.HTTPAddr
	cfg.Store.BoltPath = dbPath
	cfg.Store.AdminDB = dbPath + ".admin.sqlite"

	if *clean {
		_ = os.Remove(cfg.Store.BoltPath)
		_ = os.Remove(cfg.Store.AdminDB)
	}

	logger := setupLogger(cfg.Logging)

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Listen: %s  (ws: /ws, health: /health, metrics: %s, admin: /admin/...)\n", cfg.Server.HTTPAddr, cfg.Metrics.Path)
	green.Print("    ▶ ")
	fmt.Printf("DB:     %s\n", cfg.Store.BoltPath)
	fmt.Println()

	logger.Info("starting coven-relay", "addr", cfg.Server.HTTPAddr, "db", cfg.Store.BoltPath)

	st, err := boltstore.Open(cfg.Store.BoltPath)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer st.Close()

	admin, err := adminstore.Open(cfg.Store.AdminDB)
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer admin.Close()

	relayKey, err := loadOrCreateRelayKey(cfg.RelayKey.Path)
	if err != nil {
		return fmt.Errorf("loading relay key: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	broadcaster := wire.NewBroadcaster(logger)
	broadcaster.SetMetrics(m)
	defer broadcaster.Close()

	eng := engine.New(st, broadcaster, logger, m)
	hub := wire.NewHub(eng, broadcaster, "coven-relay", version, logger)

	loop := retention.New(eng, st, relayKey, cfg.Retention.PruneInterval, cfg.Retention.CheckpointInterval, logger, m)
	loop.SetCheckpointIndex(checkpointIndexAdapter{admin})
	loop.Start()
	defer loop.Stop()

	adminSecret := loadOrCreateAdminSecret(cfg.RelayKey.Path + ".admin-secret")
	verifier := relayadmin.NewJWTVerifier(adminSecret, principalStoreAdapter{admin})
	auditCounter := &sequentialID{prefix: "audit"}
	adminHandler := relayadmin.NewHandler(verifier, loop, auditAdapter{admin}, auditCounter.next, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	adminHandler.Routes(mux)

	server := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// applyDefaultDurations parses config.Default()'s raw interval strings,
// mirroring what config.Load does for a file on disk. Needed because
// Default() only fills the yaml-facing raw fields, not the parsed
// time.Duration ones Load normally derives.
func applyDefaultDurations(cfg *config.Config) error {
	var err error
	cfg.Retention.PruneInterval, err = time.ParseDuration(cfg.Retention.PruneIntervalRaw)
	if err != nil {
		return err
	}
	cfg.Retention.CheckpointInterval, err = time.ParseDuration(cfg.Retention.CheckpointIntervalRaw)
	if err != nil {
		return err
	}
	cfg.Retention.MaxAge, err = time.ParseDuration(cfg.Retention.MaxAgeRaw)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadOrCreateRelayKey(path string) (*cryptoid.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return cryptoid.ParsePrivateKeyHex(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := cryptoid.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating relay key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(key.Hex()), 0600); err != nil {
		return nil, fmt.Errorf("writing relay key: %w", err)
	}
	return key, nil
}

func loadOrCreateAdminSecret(path string) []byte {
	data, err := os.ReadFile(path)
	if err == nil {
		return data
	}
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	encoded := base64.StdEncoding.EncodeToString(secret)
	_ = os.WriteFile(path, []byte(encoded), 0600)
	return []byte(encoded)
}

// sequentialID generates audit entry identifiers without Date.Now/UUID
// randomness dependencies beyond what crypto/rand already provides at
// process start.
type sequentialID struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *sequentialID) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.prefix + "-" + strconv.Itoa(s.n)
}

// auditAdapter satisfies relayadmin.AuditRecorder by converting its local
// AuditEntry shape into adminstore's, keeping relayadmin free of an
// adminstore import.
type auditAdapter struct {
	store *adminstore.Store
}

func (a auditAdapter) RecordAudit(ctx context.Context, e *relayadmin.AuditEntry) error {
	return a.store.RecordAudit(ctx, &adminstore.AuditEntry{
		AuditID:          e.AuditID,
		ActorPrincipalID: e.ActorPrincipalID,
		Action:           e.Action,
		GuildID:          e.GuildID,
		Detail:           e.Detail,
		Timestamp:        e.Timestamp,
	})
}

// checkpointIndexAdapter satisfies retention.CheckpointIndex by converting
// its local CheckpointRecord shape into adminstore's, keeping retention
// free of an adminstore import.
type checkpointIndexAdapter struct {
	store *adminstore.Store
}

func (a checkpointIndexAdapter) IndexCheckpoint(ctx context.Context, rec retention.CheckpointRecord) error {
	return a.store.IndexCheckpoint(ctx, &adminstore.CheckpointRecord{
		GuildID:   rec.GuildID,
		Seq:       rec.Seq,
		EventID:   rec.EventID,
		RootHash:  rec.RootHash,
		CreatedAt: rec.CreatedAt,
	})
}

// principalStoreAdapter satisfies relayadmin.PrincipalStore by converting
// adminstore's not-found error into relayadmin's own sentinel, keeping
// relayadmin free of an adminstore import.
type principalStoreAdapter struct {
	store *adminstore.Store
}

func (a principalStoreAdapter) GetPrincipalStatus(ctx context.Context, principalID string) (string, error) {
	p, err := a.store.GetPrincipalByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, adminstore.ErrNotFound) {
			return "", relayadmin.ErrPrincipalUnknown
		}
		return "", err
	}
	return p.Status, nil
}

func (a principalStoreAdapter) TouchLastSeen(ctx context.Context, principalID string, at time.Time) error {
	return a.store.TouchLastSeen(ctx, principalID, at)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{level: level}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: newGroups}
}

func runHealth(ctx context.Context) error {
	port := envOr("PORT", "7447")
	url := fmt.Sprintf("http://localhost:%s/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("healthy")
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	out, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}
	if err := os.WriteFile(configPath, out, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Config written to %s\n", configPath)
	fmt.Println("To start the relay:")
	fmt.Println("  coven-relay serve")
	return nil
}
