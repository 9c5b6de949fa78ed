package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	storePath  string
	devMode    bool
	appVersion string
)

// envAliases are the bare variable names deployments already set, bound
// next to the KEY_ prefixed names.
var envAliases = map[string]string{
	"store.path":      "KEYS_FILE",
	"auth.api_secret": "API_SECRET",
	"auth.admin_ids":  "ADMIN_IDS",
	"server.port":     "PORT",
	"server.host":     "HOST",
}

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Issue, validate and administer license keys",
		Long: `key manages a JSON store of license keys.

Keys are issued to users for a fixed duration, validated by client software
over HTTP, and administered from this CLI, the admin API or an MCP client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./key.yaml)")
	cmd.PersistentFlags().StringVar(&storePath, "store", "", "path to the key store (default keys.json)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Verbose logging")
	viper.BindPFlag("store.path", cmd.PersistentFlags().Lookup("store"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIssueCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRevokeCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newUsersCmd())
	cmd.AddCommand(newMineCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("key")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.key")
	}

	setDefaults()

	viper.SetEnvPrefix("KEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, alias := range envAliases {
		envName := "KEY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		viper.BindEnv(key, envName, alias)
	}
	viper.ReadInConfig() // Ignore error - config file is optional
}
