package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the key server is running",
		Long:  "Query /api/health on the configured server and report the key count it sees.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default from server.host and server.port)")

	return cmd
}

func runStatus(base string) error {
	if base == "" {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		base = fmt.Sprintf("http://%s:%d", displayHost(cfg.Server.Host), cfg.Server.Port)
	}

	healthAddr := base + "/api/health"
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(healthAddr)
	if err != nil {
		fmt.Printf("Server is not responding at %s\n", base)
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Status    string `json:"status"`
		KeysCount int    `json:"keys_count"`
		KeysFile  string `json:"keys_file"`
		Error     string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Server is running but unhealthy (%d)\n", resp.StatusCode)
		if body.Error != "" {
			fmt.Printf("  Error:   %s\n", body.Error)
		}
		return nil
	}

	fmt.Println("Server is running")
	fmt.Printf("  Health:  %s (%d)\n", healthAddr, resp.StatusCode)
	fmt.Printf("  Keys:    %d in %s\n", body.KeysCount, body.KeysFile)
	return nil
}
