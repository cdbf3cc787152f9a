package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/memberqr/api"
	"github.com/openclaw/memberqr/config"
	"github.com/openclaw/memberqr/notify"
	"github.com/openclaw/memberqr/qr"
	"github.com/openclaw/memberqr/registry"
	"github.com/openclaw/memberqr/store"
)

var version = "v0.1.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "memberqr",
		Short: "Member registration with QR profile codes",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")

	// --- serve command -------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	// --- register command ----------------------------------------------------
	var in registry.NewMember
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a member directly in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), configPath, in, cmd.OutOrStdout())
		},
	}
	registerCmd.Flags().StringVar(&in.Name, "name", "", "Member name")
	registerCmd.Flags().StringVar(&in.Contact, "contact", "", "Contact (phone or email)")
	registerCmd.Flags().StringVar(&in.BloodGroup, "blood-group", "", "Blood group, e.g. O+")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("contact")
	registerCmd.MarkFlagRequired("blood-group")
	root.AddCommand(registerCmd)

	// --- list command --------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	})

	// --- qr command ----------------------------------------------------------
	var qrOut, qrBaseURL string
	qrCmd := &cobra.Command{
		Use:   "qr [member-id]",
		Short: "Write a member's QR code as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQR(cmd.Context(), configPath, args[0], qrBaseURL, qrOut)
		},
	}
	qrCmd.Flags().StringVarP(&qrOut, "output", "o", "", "Output file (default <member-id>.png)")
	qrCmd.Flags().StringVar(&qrBaseURL, "base-url", "", "External base URL (overrides config)")
	root.AddCommand(qrCmd)

	// --- status command ------------------------------------------------------
	var statusAddr string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(statusAddr, cmd.OutOrStdout())
		},
	}
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:5001", "Server HTTP address")
	root.AddCommand(statusCmd)

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memberqr %s\n", version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// app bundles the components every command needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *store.MemberStore
	members *registry.Service
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	memberStore, err := store.NewMemberStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open member store: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: memberStore,
		members: &registry.Service{
			Store:     memberStore,
			Allocator: registry.NewAllocator(memberStore, nil, log),
			Notifier:  notify.NewWebhookSender(cfg.WebhookURL, log),
			BaseURL:   cfg.BaseURL,
			Log:       log,
		},
	}, nil
}

func (a *app) composer() *qr.Composer {
	if a.cfg.LogoPath == "" {
		return qr.NewComposer(nil)
	}
	return qr.NewComposer(qr.FileLogo{Path: a.cfg.LogoPath})
}

// profileBase is the external URL used outside a request: the configured
// base URL, or the local server address.
func (a *app) profileBase() string {
	if a.cfg.BaseURL != "" {
		return a.cfg.BaseURL
	}
	return fmt.Sprintf("http://localhost:%d", a.cfg.Port)
}

// runServe is the main service entrypoint that wires all components together.
func runServe(configPath string) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()
	cfg, log := a.cfg, a.log

	log.Info("starting memberqr", "version", version, "addr", cfg.Addr(),
		"database", cfg.DatabasePath, "debug", cfg.DebugEnabled(), "environment", cfg.Environment)
	if cfg.SecretKey == config.DefaultSecretKey {
		log.Warn("using the development secret key; set SECRET_KEY")
	}
	if cfg.WebhookURL != "" {
		log.Info("registration webhook enabled")
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(&api.Server{
			Members:   a.members,
			Composer:  a.composer(),
			BaseURL:   cfg.BaseURL,
			SecretKey: cfg.SecretKey,
			Debug:     cfg.DebugEnabled(),
			Log:       log,
			Version:   version,
			StartTime: time.Now(),
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}
	a.members.Wait()

	log.Info("goodbye")
	return nil
}

func runRegister(ctx context.Context, configPath string, in registry.NewMember, out io.Writer) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()

	in.ProfileBase = a.profileBase()
	m, err := a.members.Register(ctx, in)
	if err != nil {
		return err
	}
	a.members.Wait()
	fmt.Fprintln(out, m.MemberID)
	return nil
}

func runList(ctx context.Context, configPath string, out io.Writer) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()

	members, err := a.members.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER ID\tNAME\tCONTACT\tBLOOD\tREGISTERED")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.MemberID, m.Name, m.Contact, m.BloodGroup, m.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runQR(ctx context.Context, configPath, memberID, baseURL, output string) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.store.Close()

	m, err := a.members.Lookup(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("member %s not found", memberID)
	}
	if err != nil {
		return err
	}

	if baseURL == "" {
		baseURL = a.profileBase()
	}
	data := baseURL + "/profile/" + m.MemberID

	code, err := a.composer().Compose(data)
	if errors.Is(err, qr.ErrLogoRead) {
		a.log.Warn("logo unreadable, writing plain code", "error", err)
		code, err = a.composer().ComposePlain(data)
	}
	if err != nil {
		return err
	}

	if output == "" {
		output = m.MemberID + ".png"
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := qr.EncodePNG(f, code.Image); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", output, err)
	}
	a.log.Info("QR code written", "member_id", m.MemberID, "file", output, "data", data)
	return nil
}

// runStatus queries the server's HTTP status endpoint.
func runStatus(addr string, out io.Writer) error {
	resp, err := http.Get(addr + "/status")
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	fmt.Fprintln(out, string(body))
	return nil
}
