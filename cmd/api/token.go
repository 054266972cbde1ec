package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
)

func newTokenCommand() *cobra.Command {
	var (
		id           string
		name         string
		email        string
		actorType    string
		capabilities []string
		ttl          time.Duration
	)

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for an actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			switch domain.ActorType(actorType) {
			case domain.ActorTypeAgent, domain.ActorTypeCustomer, domain.ActorTypeSystem:
			default:
				return fmt.Errorf("unknown actor type %q", actorType)
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
			token, expiresAt, err := tokens.GenerateToken(domain.Actor{
				ID:           id,
				Name:         name,
				Email:        email,
				Type:         domain.ActorType(actorType),
				Capabilities: capabilities,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"token": token, "expires_at": expiresAt})
		},
	}
	issue.Flags().StringVar(&id, "id", "", "Actor id, usually an agent id")
	issue.Flags().StringVar(&name, "name", "", "Display name")
	issue.Flags().StringVar(&email, "email", "", "Email address")
	issue.Flags().StringVar(&actorType, "type", string(domain.ActorTypeAgent), "Actor type (agent, customer, system)")
	issue.Flags().StringSliceVar(&capabilities, "capability", nil, "Capability to grant, repeatable")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = issue.MarkFlagRequired("id")
	_ = issue.MarkFlagRequired("name")

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Actor token tools",
	}
	cmd.AddCommand(issue)
	return cmd
}
