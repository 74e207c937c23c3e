package main

import (
	"encoding/json"
	"errors"
	"time"

	"canvas-relay/internal/env"
	internaljwt "canvas-relay/internal/jwt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token for the /api/v1 endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			env.SetDefaults(v)
			secret := v.GetString(env.AdminSecret)
			if secret == "" {
				return errors.New(env.AdminSecret + " is not set")
			}
			internaljwt.SetRoleSecret(internaljwt.RoleAdmin, secret)

			tok, err := internaljwt.CreateToken(internaljwt.Operator{Id: operator}, internaljwt.RoleAdmin, time.Now().Add(ttl).Unix())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tok)
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "admin", "operator id stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", internaljwt.AdminTokenTTL, "token lifetime")
	return cmd
}
