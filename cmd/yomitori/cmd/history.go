package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/history"
)

var errMemoryHistory = errors.New("history is only persistent with the redis backend (set history.backend: redis)")

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect results stored by the server",
	Long: `Inspect the OCR history shared with "yomitori serve". The history is read
from the configured Redis backend.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		bindFlag(cmd, "history.redis_url", "redis-url")
		bindFlag(cmd, "history.redis_key", "redis-key")
		return nil
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tFILE\tCREATED\tBLOCKS\tTEXT")
		for _, e := range entries {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.FileName, e.CreatedAt.Local().Format(time.DateTime), len(e.TextBlocks), preview(e.FullText, 24))
		}
		return tw.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one stored result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		e, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(e)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), e.FullText)
		return err
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		var errs []error
		for _, id := range args {
			if err := store.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return store.Clear(cmd.Context())
	},
}

func historyStore(cmd *cobra.Command) (history.Store, error) {
	cfg := GetConfig()
	if cfg.History.Backend != history.BackendRedis {
		return nil, errMemoryHistory
	}
	return openHistory(cmd.Context(), cfg)
}

// preview shortens s to n runes on one line.
func preview(s string, n int) string {
	out := make([]rune, 0, n)
	for _, r := range s {
		if len(out) == n {
			return string(out) + "…"
		}
		if r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
	historyCmd.PersistentFlags().String("redis-url", "", "Redis URL (default from history.redis_url)")
	historyCmd.PersistentFlags().String("redis-key", "", "Redis key prefix (default from history.redis_key)")
	historyShowCmd.Flags().Bool("json", false, "print the full entry as JSON")
}
