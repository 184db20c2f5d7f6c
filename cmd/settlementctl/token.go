package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/settlement-engine/pkg/auth"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API bearer tokens",
	}

	var subject, role string
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token signed with SETTLEMENT_JWT_SECRET",
		Example: `  settlementctl token mint --subject ops@example.com --role admin
  settlementctl token mint --subject cust_42 --role customer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := enums.ParseActorRole(role)
			if err != nil {
				return err
			}
			token, err := auth.MintAccessToken(c.cfg.JWT, time.Now().UTC(), auth.AccessTokenPayload{
				Subject: subject,
				Role:    parsed,
				JTI:     uuid.NewString(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().StringVar(&subject, "subject", "", "token subject (customer id for customer tokens)")
	mint.Flags().StringVar(&role, "role", string(enums.ActorRoleAdmin), "actor role (admin|customer)")
	_ = mint.MarkFlagRequired("subject")

	cmd.AddCommand(mint)
	return cmd
}
