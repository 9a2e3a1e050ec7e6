package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/samsaffron/mdview/internal/preview"
	"github.com/samsaffron/mdview/internal/serve"
	"github.com/samsaffron/mdview/internal/signal"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveToken       string
	serveCORSOrigins []string
	serveMode        string
	serveNoWatch     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [file|pattern]",
	Short: "Live browser preview of a markdown document",
	Long: `Serve a live preview page. The browser receives frames as JSON Patch
deltas over server-sent events and reports its scroll position so only blocks
near the viewport are rendered.

Endpoints:
  GET  /                 preview page
  GET  /api/frame        current frame as JSON
  GET  /api/events       server-sent frame and patch events
  PUT  /api/document     replace the document (bearer token when set)
  POST /api/viewport     {"top": px, "height": px}
  POST /api/measure      {"index": n, "height": px}
  GET  /healthz

Without a file the document starts empty and is fed through PUT /api/document.
Binding a non-loopback address generates a token unless --token is given.`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: MarkdownArgCompletion,
	RunE:              runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:6419)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required by PUT /api/document")
	serveCmd.Flags().StringArrayVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, or '*' for all)")
	AddModeFlag(serveCmd, &serveMode)
	AddWatchFlag(serveCmd, &serveNoWatch)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}

	token := strings.TrimSpace(serveToken)
	if token == "" && !isLoopbackHost(host) {
		token, err = generateServeToken()
		if err != nil {
			return fmt.Errorf("generate auth token: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "document updates require: Authorization: Bearer %s\n", token)
	}

	var doc *liveDocument
	if len(args) > 0 {
		doc, err = openLive(args, serveNoWatch, logger)
		if err != nil {
			return err
		}
	}

	opts, h, err := htmlOptions(cfg, serveMode, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context())
	defer cancel()

	p := preview.New(opts, logger)
	defer p.Close()
	srv := serve.New(p, h.CSS(), logger, serve.WithToken(token), serve.WithCORSOrigins(serveCORSOrigins...))

	go func() {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("preview stopped", "error", err)
		}
	}()
	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("frame publisher stopped", "error", err)
		}
	}()
	if doc != nil {
		go func() {
			if err := doc.run(ctx, p, logger); err != nil {
				logger.Warn("document feed stopped", "error", err)
			}
		}()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "previewing %s at http://%s/\n", documentName(doc), addr)
	return srv.ListenAndServe(ctx, addr)
}

func documentName(doc *liveDocument) string {
	if doc == nil {
		return "an empty document"
	}
	return doc.name
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	return h == "127.0.0.1" || h == "localhost" || h == "::1"
}

func generateServeToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
