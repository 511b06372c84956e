package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reasongate-gateway/internal/pricing"
)

func pricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect or publish the pricing table",
	}
	cmd.AddCommand(pricingShowCmd())
	cmd.AddCommand(pricingPushCmd())
	return cmd
}

func pricingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the pricing table the gateway would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			table := cfg.Pricing.Table
			if cfg.Pricing.Backend == pricing.BackendRedis {
				client, err := connectRedis(ctx, cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				table, err = pricing.NewRedisStore(client, pricing.RedisConfig{
					Key:  cfg.Pricing.RedisKey,
					Base: cfg.Pricing.Table,
				}).Table(ctx)
				if err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(table)
		},
	}
}

func pricingPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Write the configured pricing table to the Redis pricing hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Pricing.Table.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			client, err := connectRedis(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			store := pricing.NewRedisStore(client, pricing.RedisConfig{Key: cfg.Pricing.RedisKey})
			if err := store.Put(ctx, cfg.Pricing.Table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pricing table written to %s %s\n", cfg.Redis.Addr, cfg.Pricing.RedisKey)
			return nil
		},
	}
}
