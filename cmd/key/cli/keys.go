package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkornevpro/key/internal/model"
)

// ---------- issue ----------

func newIssueCmd() *cobra.Command {
	var (
		username   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "issue <user_id>",
		Short: "Issue a 30-day key, or show the user's current one",
		Long: `Self-service issuance. If the user already holds an unexpired key it is
returned unchanged; otherwise a new 30-day key is created.`,
		Example: `  key issue 123456789 --username alice`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return runIssue(userID, username, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Display name recorded on a new key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runIssue(userID int64, username string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.keys.IssueSelfService(a.ctx(), userID, username)
	if err != nil {
		return explain(err)
	}
	if jsonOutput {
		return printJSON(keyRow(&res.Record, a.keys.Now()))
	}

	if res.Created {
		fmt.Println("Key issued:")
	} else {
		fmt.Println("User already holds a valid key:")
	}
	printRecord(&res.Record, a)
	return nil
}

// ---------- create ----------

func newCreateCmd() *cobra.Command {
	var (
		perpetual  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create <user_id> <duration> | <user_id:duration>",
		Short: "Create a key for a user with an explicit duration",
		Long: `Create an administrator key. Durations are a positive number followed by
s, m, h, d, w or year (30d, 12h, 1year). --perpetual creates a key that
never expires and takes no duration.`,
		Example: `  key create 123456789 30d
  key create 123456789:1year
  key create 123456789 --perpetual`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, token, err := parseCreateArgs(args, perpetual)
			if err != nil {
				return err
			}
			return runCreate(userID, token, perpetual, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&perpetual, "perpetual", false, "Create a key that never expires")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// parseCreateArgs accepts "<user_id> <duration>", "<user_id:duration>" or,
// with perpetual, a lone "<user_id>".
func parseCreateArgs(args []string, perpetual bool) (int64, string, error) {
	var idArg, token string
	switch {
	case len(args) == 2:
		idArg, token = args[0], args[1]
	case strings.Contains(args[0], ":"):
		idArg, token, _ = strings.Cut(args[0], ":")
	default:
		idArg = args[0]
	}

	userID, err := parseUserID(idArg)
	if err != nil {
		return 0, "", err
	}
	token = strings.TrimSpace(token)
	switch {
	case perpetual && token != "":
		return 0, "", errors.New("--perpetual takes no duration")
	case !perpetual && token == "":
		return 0, "", errors.New("a duration is required, e.g. 30d, or pass --perpetual")
	}
	return userID, token, nil
}

func runCreate(userID int64, token string, perpetual, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var rec model.KeyRecord
	if perpetual {
		rec, err = a.keys.IssuePerpetual(a.ctx(), userID)
	} else {
		rec, err = a.keys.IssueAdmin(a.ctx(), userID, token)
	}
	if err != nil {
		return explain(err)
	}
	if jsonOutput {
		return printJSON(keyRow(&rec, a.keys.Now()))
	}

	fmt.Println("Key created:")
	printRecord(&rec, a)
	return nil
}

// ---------- list ----------

func newListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List keys in store order",
		Example: `  key list
  key list --limit 0 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum keys to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// listRow is the CLI view of a key.
type listRow struct {
	Key       string `json:"key"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Duration  string `json:"duration"`
	Status    string `json:"status"`
	ByAdmin   bool   `json:"created_by_admin"`
}

func keyRow(rec *model.KeyRecord, now time.Time) listRow {
	row := listRow{
		Key:       rec.Key,
		UserID:    rec.UserID,
		Username:  rec.Username,
		CreatedAt: rec.CreatedAt.String(),
		Duration:  rec.Duration,
		Status:    statusLabel(rec, now),
		ByAdmin:   rec.CreatedByAdmin,
	}
	if rec.ExpiresAt != nil {
		row.ExpiresAt = rec.ExpiresAt.String()
	}
	return row
}

func runList(limit int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.keys.List(a.ctx(), limit)
	if err != nil {
		return explain(err)
	}
	now := a.keys.Now()

	if jsonOutput {
		rows := make([]listRow, len(res.Keys))
		for i := range res.Keys {
			rows[i] = keyRow(&res.Keys[i], now)
		}
		return printJSON(rows)
	}

	if res.Total == 0 {
		fmt.Println("No keys issued yet. Use 'key create' to create one.")
		return nil
	}

	fmt.Printf("%-18s %-12s %-24s %-8s %s\n", "KEY", "USER", "USERNAME", "STATUS", "EXPIRES")
	fmt.Printf("%-18s %-12s %-24s %-8s %s\n", "---", "----", "--------", "------", "-------")
	for i := range res.Keys {
		rec := &res.Keys[i]
		fmt.Printf("%-18s %-12d %-24s %-8s %s\n",
			rec.Key, rec.UserID, truncate(rec.Username, 24), statusLabel(rec, now), formatExpiry(rec.ExpiresAt, now))
	}
	if res.Omitted > 0 {
		fmt.Printf("... and %d more\n", res.Omitted)
	}
	return nil
}

// ---------- delete / revoke / restore ----------

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Delete a key permanently",
		Long:    "Remove a key from the store. Use 'key revoke' to disable a key while keeping its record.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runDelete(key string, yes bool) error {
	if !yes {
		ok, err := confirm(fmt.Sprintf("Delete key %s?", key))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.keys.Delete(a.ctx(), key); err != nil {
		return explain(err)
	}
	fmt.Printf("Deleted key %s\n", key)
	return nil
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Deactivate a key without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetActive(args[0], false)
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <key>",
		Short: "Reactivate a revoked key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetActive(args[0], true)
		},
	}
}

func runSetActive(key string, active bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if active {
		_, err = a.keys.Restore(a.ctx(), key)
	} else {
		_, err = a.keys.Revoke(a.ctx(), key)
	}
	if err != nil {
		return explain(err)
	}
	if active {
		fmt.Printf("Restored key %s\n", key)
	} else {
		fmt.Printf("Revoked key %s\n", key)
	}
	return nil
}

// ---------- check ----------

func newCheckCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check <key>",
		Short: "Validate a key against the store",
		Long:  "Validate a key exactly as /api/validate does. Exits non-zero when the key is not usable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(key string, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.keys.Validate(a.ctx(), key)
	if err != nil {
		return explain(err)
	}

	if jsonOutput {
		out := map[string]interface{}{"valid": res.Valid}
		if res.Valid {
			out["user_id"] = res.UserID
			out["username"] = res.Username
			out["expires_at"] = nil
			if res.ExpiresAt != nil {
				out["expires_at"] = res.ExpiresAt.String()
			}
		} else {
			out["error"] = res.Reason.Message()
		}
		if err := printJSON(out); err != nil {
			return err
		}
	} else if res.Valid {
		fmt.Println("Key is valid")
		fmt.Printf("  User:     %d (%s)\n", res.UserID, res.Username)
		fmt.Printf("  Expires:  %s\n", formatExpiry(res.ExpiresAt, a.keys.Now()))
	}

	if !res.Valid {
		return errors.New(res.Reason.Message())
	}
	return nil
}

// ---------- users / mine ----------

func newUsersCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Show key counts per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsers(limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum users to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUsers(limit int, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.keys.UserStats(a.ctx())
	if err != nil {
		return explain(err)
	}
	total := len(stats)
	if limit > 0 && total > limit {
		stats = stats[:limit]
	}

	if jsonOutput {
		if stats == nil {
			stats = []model.UserStat{}
		}
		return printJSON(stats)
	}

	if total == 0 {
		fmt.Println("No users hold keys.")
		return nil
	}

	fmt.Printf("%-12s %-24s %-6s %s\n", "USER", "USERNAME", "KEYS", "ACTIVE")
	fmt.Printf("%-12s %-24s %-6s %s\n", "----", "--------", "----", "------")
	for _, st := range stats {
		fmt.Printf("%-12d %-24s %-6d %d\n", st.UserID, truncate(st.Username, 24), st.KeysCount, st.ActiveKeysCount)
	}
	if total > len(stats) {
		fmt.Printf("... and %d more\n", total-len(stats))
	}
	return nil
}

func newMineCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "mine <user_id>",
		Short: "List every key held by one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return runMine(userID, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runMine(userID int64, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	held, err := a.keys.UserKeys(a.ctx(), userID)
	if err != nil {
		return explain(err)
	}
	now := a.keys.Now()

	if jsonOutput {
		rows := make([]listRow, len(held))
		for i := range held {
			rows[i] = keyRow(&held[i].KeyRecord, now)
		}
		return printJSON(rows)
	}

	if len(held) == 0 {
		fmt.Printf("User %d holds no keys.\n", userID)
		return nil
	}
	for i := range held {
		rec := &held[i].KeyRecord
		fmt.Printf("%s  %-8s %s\n", rec.Key, statusLabel(rec, now), formatExpiry(rec.ExpiresAt, now))
	}
	return nil
}

// ---------- shared ----------

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printRecord(rec *model.KeyRecord, a *app) {
	now := a.keys.Now()
	fmt.Println()
	fmt.Printf("  Key:      %s\n", rec.Key)
	fmt.Printf("  User:     %d (%s)\n", rec.UserID, rec.Username)
	fmt.Printf("  Duration: %s\n", rec.Duration)
	fmt.Printf("  Expires:  %s\n", formatExpiry(rec.ExpiresAt, now))
	fmt.Printf("  Status:   %s\n", statusLabel(rec, now))
	fmt.Println()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
