package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkoval/peercast/internal/client"
	"github.com/dkoval/peercast/internal/domain"
	"github.com/dkoval/peercast/internal/rtc"
)

var viewCmd = &cobra.Command{
	Use:   "view <room>",
	Short: "Join a room and receive the host's stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := client.SessionOpts{
			Room:    domain.RoomID(args[0]),
			Engine:  rtc.NewPionEngine(),
			Servers: iceServers(),
		}
		return runSession(cmd.Context(), opts, func(sess *client.Session) error {
			if err := sess.Join(); err != nil {
				return err
			}
			fmt.Printf("Joined room %s, waiting for the host...\n", args[0])
			return nil
		})
	},
}
