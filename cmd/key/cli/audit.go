package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkornevpro/key/internal/model"
)

func newAuditCmd() *cobra.Command {
	var (
		limit      int
		key        string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the key mutation log",
		Long:  "Show recent issue, create, delete, revoke and restore events, newest first.",
		Example: `  key audit --limit 50
  key audit --key 8f3k2m9x1q7w5e4r`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(limit, key, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum events to show")
	cmd.Flags().StringVar(&key, "key", "", "Only show the history of this key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAudit(limit int, key string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.audit == nil {
		return errors.New("audit log is disabled (audit.enabled: false)")
	}

	var events []model.AuditEvent
	if key != "" {
		events, err = a.audit.ListForKey(a.ctx(), key)
	} else {
		events, err = a.audit.List(a.ctx(), limit)
	}
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	if jsonOutput {
		if events == nil {
			events = []model.AuditEvent{}
		}
		return printJSON(events)
	}

	if len(events) == 0 {
		fmt.Println("No audit events recorded.")
		return nil
	}

	fmt.Printf("%-16s %-8s %-18s %-12s %-10s %s\n", "TIME", "ACTION", "KEY", "USER", "ACTOR", "DETAIL")
	for _, ev := range events {
		fmt.Printf("%-16s %-8s %-18s %-12d %-10s %s\n",
			ev.At.Format(displayLayout), ev.Action, ev.Key, ev.UserID, ev.Actor, ev.Detail)
	}
	return nil
}
