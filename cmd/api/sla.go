package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func newSLACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "SLA maintenance",
	}

	var entityID string
	compliance := &cobra.Command{
		Use:   "compliance",
		Short: "Print the SLA compliance rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container) error {
				var scope *string
				if entityID != "" {
					scope = &entityID
				}
				result, err := c.slas.ComplianceRate(ctx, scope)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	compliance.Flags().StringVar(&entityID, "entity", "", "Limit to an entity and its children")

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Run one SLA breach sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, func(ctx context.Context, c *container) error {
				result, err := c.slas.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}, compliance)
	return cmd
}

func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *container) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := newContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
