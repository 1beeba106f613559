// Command chatctl is a terminal client for the pet adoption chat. It keeps a
// rate-limited, reconnecting socket session open and exposes its state on a
// local admin listener.
package main

import (
	"context"
	"fmt"
	"os"

	"petchat/internal/platform/config"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func newCommand() *cli.Command {
	defaults := config.FromEnv()
	return &cli.Command{
		Name:    "chatctl",
		Usage:   "Pet adoption chat client",
		Suggest: true,
		Version: version,

		Commands: []*cli.Command{
			{
				Name:  "connect",
				Usage: "Join a chat and send each stdin line as a message",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "chat-id",
						Aliases:  []string{"c"},
						Usage:    "Chat to join",
						Required: true,
						Sources:  cli.EnvVars("CHAT_ID"),
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Chat socket URL",
						Value: defaults.ChatURL,
					},
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "Mint a dev token for this user when CHAT_TOKEN is unset",
					},
					&cli.StringFlag{
						Name:  "admin-addr",
						Usage: "Listen address for health, metrics and admin endpoints",
						Value: defaults.AdminAddr,
					},
				},
				Action: runConnect,
			},
			{
				Name:  "token",
				Usage: "Mint a development socket token (dev signing key only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user-id",
						Aliases:  []string{"u"},
						Usage:    "User the token is issued to",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token time-to-live",
						Value: defaults.TokenTTL,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: runToken,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "chatctl:", err)
		os.Exit(1)
	}
}
