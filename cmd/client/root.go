package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkoval/peercast/internal/client"
	"github.com/dkoval/peercast/internal/config"
	"github.com/dkoval/peercast/internal/domain"
	"github.com/dkoval/peercast/internal/rtc"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "peercast",
	Short: "Headless peercast participant",
	Long:  "Connects to a peercast relay as a host (share a stream) or a viewer (watch one).",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "localhost:8080", "relay host:port")
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(viewCmd)
}

func signalURL() string {
	return fmt.Sprintf("ws://%s/api/ws/signal", serverAddr)
}

func shareURL(room domain.RoomID) string {
	return fmt.Sprintf("http://%s?room=%s", serverAddr, room)
}

func iceServers() []rtc.ICEServer {
	cfg, err := config.Load()
	var servers []config.ICEServer
	if err != nil {
		log.Warn().Err(err).Msg("config load failed, using default ICE servers")
		servers = config.DefaultICEServers()
	} else {
		servers = cfg.ICEServers
	}
	out := make([]rtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, rtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

// runSession connects to the relay and pumps messages into the session
// until interrupted, the relay drops, or the server kicks us.
func runSession(ctx context.Context, opts client.SessionOpts, start func(*client.Session) error) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relay, err := client.DialRelay(ctx, signalURL())
	if err != nil {
		return err
	}

	opts.OnForceDisconnect = func(reason string) {
		log.Warn().Str("reason", reason).Msg("disconnected by server")
		cancel()
	}
	sess := client.NewSession(relay, opts)
	defer sess.Close()

	done := make(chan error, 1)
	go func() {
		done <- relay.Run(ctx, sess.Handle)
	}()

	if err := start(sess); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("relay connection lost: %w", err)
		}
		return nil
	}
}
