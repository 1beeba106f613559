package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"petchat/internal/chat/token"
	"petchat/internal/platform/config"

	"github.com/urfave/cli/v3"
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func runToken(_ context.Context, cmd *cli.Command) error {
	cfg := config.FromEnv()
	tok, err := mintToken(cfg.SigningKey, cmd.String("user-id"), cmd.Duration("ttl"))
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	if !cmd.Bool("json") {
		_, err = fmt.Fprintln(out, tok)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenOutput{
		Token:     tok,
		Type:      "Bearer",
		ExpiresIn: cmd.Duration("ttl").String(),
		Usage: map[string]string{
			"header": token.BearerHeader(tok),
			"env":    "CHAT_TOKEN=" + tok,
		},
	})
}

func mintToken(signingKey, userID string, ttl time.Duration) (string, error) {
	svc, err := token.New(signingKey, ttl)
	if err != nil {
		return "", err
	}
	return svc.Mint(userID)
}
