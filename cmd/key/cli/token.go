package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkornevpro/key/internal/service"
)

func newTokenCmd() *cobra.Command {
	var ttl string

	cmd := &cobra.Command{
		Use:   "token <admin_id>",
		Short: "Mint an admin bearer token for the HTTP API",
		Long: `Sign a JWT for an allowlisted admin (auth.admin_ids). The token is
accepted by /api/admin, /api/issue and /mcp until it expires.`,
		Example: `  key token 123456789
  key token 123456789 --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adminID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid admin id %q", args[0])
			}
			return runToken(adminID, ttl)
		},
	}

	cmd.Flags().StringVar(&ttl, "ttl", "", "Token lifetime (default auth.jwt_ttl)")

	return cmd
}

func runToken(adminID int64, ttlFlag string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ttl, err := a.cfg.Auth.TokenTTL()
	if err != nil {
		return err
	}
	if ttlFlag != "" {
		if ttl, err = time.ParseDuration(ttlFlag); err != nil || ttl <= 0 {
			return fmt.Errorf("invalid --ttl %q", ttlFlag)
		}
	}

	authSvc := service.NewAuthService(a.cfg.Auth.APISecret, a.cfg.Auth.JWTSecret, a.keys)
	token, err := authSvc.IssueJWT(a.ctx(), adminID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
