package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/app"
	"github.com/tphakala/wildalert/internal/conf"
	"github.com/tphakala/wildalert/internal/session"
)

// Command issues bearer tokens for non-browser clients such as dispatch
// consoles. Requires security.jwtsecret.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		role    string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long: `Issue a signed bearer token carrying a role.

Examples:
  wildalert token --role=operator --subject=control-room --ttl=24h
  wildalert token --role=recipient --subject=village-board`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := session.ParseRole(role)
			if !ok {
				return fmt.Errorf("invalid role: %s", role)
			}

			service, err := auth.NewService(app.AuthConfig(settings), nil)
			if err != nil {
				return err
			}
			signed, err := service.IssueToken(r, subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&role, "role", "operator", "Role carried by the token (operator, recipient)")
	cmd.Flags().StringVar(&subject, "subject", "cli", "Subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")

	return cmd
}
