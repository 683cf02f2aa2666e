// ABOUTME: Entry point for the intake-gateway webhook server.
// ABOUTME: Wires the inbound pipeline, message log, and operator API together.

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/clinicops/intake-gateway/internal/auth"
	"github.com/clinicops/intake-gateway/internal/chatlog"
	"github.com/clinicops/intake-gateway/internal/config"
	"github.com/clinicops/intake-gateway/internal/dedupe"
	"github.com/clinicops/intake-gateway/internal/flow"
	"github.com/clinicops/intake-gateway/internal/identity"
	"github.com/clinicops/intake-gateway/internal/menu"
	"github.com/clinicops/intake-gateway/internal/outbound"
	"github.com/clinicops/intake-gateway/internal/session"
	"github.com/clinicops/intake-gateway/internal/webhook"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _       _        _                           _
 (_)_ __ | |_ __ _| | _____        __ _  __ _| |_ _____      ____ _ _   _
 | | '_ \| __/ _' | |/ / _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | | | | || (_| |   <  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_|_| |_|\__\__,_|_|\_\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: INTAKE_CONFIG env var > XDG_CONFIG_HOME/intake/gateway.yaml > ~/.config/intake/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("INTAKE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "intake", "gateway.yaml")
}

func main() {
	// Local .env files carry provider credentials in development
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: intake-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the webhook server")
		fmt.Println("  init    Create a config file with generated secrets")
		fmt.Println("  health  Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
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

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	if cfg.Redis.Addr != "" {
		fmt.Printf("Redis:    %s\n", cfg.Redis.Addr)
	} else {
		fmt.Printf("Redis:    disabled (in-process stores)\n")
	}
	fmt.Println()

	logger.Info("starting intake-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"number_format", cfg.Provider.NumberFormat,
	)

	catalog, err := menu.LoadCatalog(cfg.Menu.Catalog)
	if err != nil {
		return fmt.Errorf("loading menu catalog: %w", err)
	}

	log, err := chatlog.NewSQLiteLog(cfg.Database.Path, cfg.History.Capacity)
	if err != nil {
		return fmt.Errorf("opening message log: %w", err)
	}
	defer log.Close()

	var sessions session.Store
	var ledger dedupe.Ledger
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer client.Close()
		sessions = session.NewRedisStore(client, cfg.Redis.SessionTTL, logger)
		ledger = dedupe.NewRedisLedger(client, cfg.Redis.SeenTTL, logger)
	} else {
		sessions = session.NewMemoryStore(cfg.Redis.SessionTTL)
		cache := dedupe.NewCache(cfg.Redis.SeenTTL, 10000)
		defer cache.Close()
		ledger = cache
	}

	if cfg.Provider.Token == "" || cfg.Provider.PhoneID == "" {
		logger.Warn("provider credentials not configured, outbound sends will fail")
	}
	provider := outbound.NewGraphProvider(cfg.Provider.APIBase, cfg.Provider.PhoneID, cfg.Provider.Token)

	gw := outbound.NewGateway(provider, log, logger)
	engine := flow.New(sessions, gw, caseRecorder{logger: logger}, logger)
	router := menu.NewRouter(engine, gw, catalog, logger)

	dispatcher := webhook.New(webhook.Options{
		Normalizer:  identity.New(normalizationMode(cfg.Provider.NumberFormat)),
		Ledger:      ledger,
		Log:         log,
		Sessions:    sessions,
		Router:      router,
		Gateway:     gw,
		Issuer:      auth.NewTokenIssuer([]byte(cfg.Secrets.OperatorSecret)),
		VerifyToken: cfg.Secrets.VerifyToken,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           dispatcher.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func normalizationMode(format string) identity.Mode {
	if format == config.NumberFormatAddMarker {
		return identity.ModeAddMarker
	}
	return identity.ModeStripMarker
}

// caseRecorder is the confirmed-intake sink. Until a practice management
// integration lands, confirmed cases are surfaced in the structured log for
// the front desk to work from.
type caseRecorder struct {
	logger *slog.Logger
}

func (c caseRecorder) CreateCase(_ context.Context, cs flow.Case) error {
	c.logger.Info("intake case confirmed",
		"key", cs.ConversationKey,
		"patient", cs.PatientName,
		"document", cs.DocumentID,
		"study_type", cs.StudyType,
		"study_date", cs.StudyDate,
		"site", cs.Site,
		"channel", cs.DeliveryChannel,
		"email", cs.Email,
	)
	return nil
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	verifyToken, err := randomSecret()
	if err != nil {
		return err
	}
	operatorSecret, err := randomSecret()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configContent := fmt.Sprintf(`# intake-gateway configuration
# Generated by intake-gateway init

server:
  http_addr: "localhost:8080"

provider:
  api_base: "https://graph.facebook.com/v20.0"
  phone_id: "${WHATSAPP_PHONE_ID}"
  token: "${WHATSAPP_TOKEN}"
  number_format: "strip_marker"

secrets:
  verify_token: "%s"
  operator_secret: "%s"

# Leave addr empty to run on in-process stores.
redis:
  addr: ""
  session_ttl: "45m"
  seen_ttl: "24h"

database:
  path: "intake.db"

history:
  capacity: 500

logging:
  level: "info"
  format: "text"
`, verifyToken, operatorSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("  Set WHATSAPP_PHONE_ID and WHATSAPP_TOKEN before serving.")
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
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
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
