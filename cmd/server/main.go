package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkoval/peercast/internal/adapters/http"
	"github.com/dkoval/peercast/internal/app"
	"github.com/dkoval/peercast/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	reg := app.NewRegistry()

	r := router.SetupRouter(ctx, cfg, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("server_ip", router.LocalIP()).Msg("Peercast relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	go runConsole(ctx, reg)

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	reg.Clear("Server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// runConsole is the operator console on stdin: the same people/clear
// commands the socket console exposes.
func runConsole(ctx context.Context, reg *app.Registry) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "people":
			fmt.Println(reg.Report())
		case "clear":
			rooms, users := reg.Clear("Server clearing all rooms")
			fmt.Printf("Cleared %d rooms and disconnected %d users\n", rooms, users)
		case "help":
			fmt.Println("\nAvailable commands:")
			fmt.Println("people - Show all rooms and users")
			fmt.Println("clear  - Disconnect all users and clear all rooms")
			fmt.Println("help   - Show this help message")
		case "":
		default:
			fmt.Println("Unknown command. Type \"help\" for available commands")
		}
	}
}
