package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maxkornevpro/key/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage key service configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default key.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := config.WriteDefault(path, force)
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%s already exists. Use --force to overwrite", path)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", "key.yaml", "File to write")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg.Auth.APISecret = mask(cfg.Auth.APISecret)
				cfg.Auth.JWTSecret = mask(cfg.Auth.JWTSecret)
			}

			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Printf("# Config file: %s\n", used)
			} else {
				fmt.Println("# No config file loaded (using defaults and environment)")
			}
			fmt.Printf("# Admin ids: %v\n\n", cfg.Auth.AdminIDs)
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets instead of masking them")

	return cmd
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
