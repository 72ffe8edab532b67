package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
)

var (
	tokenUserID string
	tokenEmail  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development bearer token",
	Long:  `Signs a token with auth.jwt_secret that the gateway will accept. For local development only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := auth.NewIssuer(cfg.Auth)
		if err != nil {
			return err
		}
		token, err := issuer.Issue(auth.Principal{SubjectID: tokenUserID, Email: tokenEmail})
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "Subject id carried by the token")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Optional email claim")
	_ = tokenCmd.MarkFlagRequired("user-id")
}
