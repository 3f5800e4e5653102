package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkoval/peercast/internal/client"
	"github.com/dkoval/peercast/internal/rtc"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Share a stream and print the viewer URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		capture, err := rtc.NewSampleCapture()
		if err != nil {
			// Device failure is fatal for the host role; no retry.
			return fmt.Errorf("local capture unavailable: %w", err)
		}

		opts := client.SessionOpts{
			Engine:  rtc.NewPionEngine(),
			Servers: iceServers(),
			Capture: capture,
		}
		return runSession(cmd.Context(), opts, func(sess *client.Session) error {
			room, err := sess.Share()
			if err != nil {
				return err
			}
			fmt.Printf("Sharing. Viewers can join at: %s\n", shareURL(room))
			return nil
		})
	},
}
