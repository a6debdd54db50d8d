package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pywire/pywire/proto"
	"github.com/pywire/pywire/server"
)

var (
	Root = &cobra.Command{
		Use:   "pywired",
		Short: "PyWire dev transport server: WebTransport, WebSocket and HTTP-poll endpoints under /_pywire/",
		Run:   startRoot,
	}
	rootFlags = struct {
		HTTPAddr  string
		HTTPSAddr string
		LogLevel  string
		CertHosts []string
	}{}
)

func init() {
	Root.Flags().StringVar(&rootFlags.HTTPAddr, "http-addr", ":8000", "the network address to listen on for HTTP (websocket + poll)")
	Root.Flags().StringVar(&rootFlags.HTTPSAddr, "https-addr", ":8443", "the network address to listen on for HTTP/3 (webtransport), empty disables it")
	Root.Flags().StringVar(&rootFlags.LogLevel, "log-level", "info", "the log level to use")
	Root.Flags().StringSliceVar(&rootFlags.CertHosts, "cert-hosts", []string{"localhost", "127.0.0.1"}, "hosts for the ephemeral dev certificate")
}

func startRoot(cmd *cobra.Command, args []string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(rootFlags.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "bad log level: %s\n", rootFlags.LogLevel)
		os.Exit(1)
		return
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	hub := server.NewHub()
	hub.OnMessage(func(s server.Session, msg proto.Message) {
		slog.Info("Message received", "session", s.ID(), "transport", s.Transport(), "type", msg.Type, "target", msg.Target)
		if msg.Type == "ping" {
			if err := s.Send(proto.Message{Type: "pong", Timestamp: msg.Timestamp}); err != nil {
				slog.Warn("Failed to send pong", "session", s.ID(), "error", err)
			}
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(rootFlags.HTTPAddr, hub)

	if rootFlags.HTTPSAddr != "" {
		cert, err := server.GenerateDevCert(rootFlags.CertHosts...)
		if err != nil {
			logErrorAndExit(logger, "Unable to generate dev certificate", slog.Any("err", err))
			return
		}
		wt := server.NewWebTransportServer(rootFlags.HTTPSAddr, &tls.Config{Certificates: []tls.Certificate{cert}}, hub)

		go func() {
			slog.Info("Starting HTTP/3 server", "addr", rootFlags.HTTPSAddr)
			if err := wt.ListenAndServe(); err != nil {
				slog.Error("HTTP/3 server stopped", "error", err)
			}
		}()
		defer wt.Close()
	}

	if err := srv.Start(ctx); err != nil {
		logErrorAndExit(logger, "HTTP server failed", slog.Any("err", err))
	}
}

func logErrorAndExit(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}
