package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/commandecho/internal/store"
)

var (
	searchLimit int
	recentLimit int
	addCategory string
	purgeDays   int
)

// openApp wires the assistant for commands that only touch memory.
func openApp(cmd *cobra.Command) (*App, func(), error) {
	obs := newObserver(cmd)
	app, err := NewApp(cmd.Context(), cfg, obs, nil)
	if err != nil {
		obs.Close()
		return nil, nil, err
	}
	return app, func() {
		app.Close()
		obs.Close()
	}, nil
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and edit long-term memory",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts and storage size",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		st, err := app.Memory.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "Memories:      %d\n", st.Memories)
		fmt.Fprintf(out, "Turns:         %d\n", st.Turns)
		fmt.Fprintf(out, "Preferences:   %d\n", st.Preferences)
		fmt.Fprintf(out, "Facts:         %d\n", st.Facts)
		fmt.Fprintf(out, "Database size: %s\n", humanize.Bytes(uint64(st.DBSize)))
		if st.Semantic {
			fmt.Fprintf(out, "Vector index:  %d entries, %d dimensions (%s)\n", st.VectorEntries, st.IndexDimension, st.IndexState)
		} else {
			fmt.Fprintln(out, "Vector index:  disabled (text search only)")
		}
		return nil
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories semantically, falling back to text search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		results, err := app.Memory.SearchMemories(cmd.Context(), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching memories.")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", r)
		}
		return nil
	},
}

var memoryAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Store a memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		id, err := app.Memory.StoreMemory(cmd.Context(), strings.Join(args, " "), addCategory, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored memory %d\n", id)
		return nil
	},
}

var memoryRememberCmd = &cobra.Command{
	Use:   "remember [key] [value]",
	Short: "Store a fact",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := app.Memory.Remember(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Remembered %s\n", args[0])
		return nil
	},
}

var memoryRecallCmd = &cobra.Command{
	Use:   "recall [key]",
	Short: "Look up a fact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		v, ok, err := app.Memory.Recall(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var memoryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the latest conversation turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		turns, err := app.Memory.RecentTurns(cmd.Context(), recentLimit)
		if err != nil {
			return err
		}
		for _, t := range turns {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s %s\n", humanize.Time(t.CreatedAt), roleLabel(t.Role), t.Content)
		}
		return nil
	},
}

func roleLabel(role string) string {
	if role == store.RoleAssistant {
		return "assistant"
	}
	return "you"
}

var memoryPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete conversation turns older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := purgeDays
		if days == 0 {
			days = cfg.Memory.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention is disabled; pass --days")
		}

		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		n, err := app.Memory.PurgeOlderThan(cmd.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d turns\n", n)
		return nil
	},
}

var prefCmd = &cobra.Command{
	Use:   "pref",
	Short: "Manage user preferences",
}

var prefGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		v, err := app.Memory.UserPreference(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}
		if v == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var prefSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a preference",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, done, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := app.Memory.StoreUserPreference(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Preference saved: %s\n", args[0])
		return nil
	},
}

func init() {
	memorySearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum results")
	memoryRecentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "Number of turns")
	memoryAddCmd.Flags().StringVar(&addCategory, "category", store.DefaultCategory, "Memory category")
	memoryPurgeCmd.Flags().IntVar(&purgeDays, "days", 0, "Age in days; defaults to memory.retention_days")

	memoryCmd.AddCommand(memoryStatsCmd, memorySearchCmd, memoryAddCmd, memoryRememberCmd,
		memoryRecallCmd, memoryRecentCmd, memoryPurgeCmd)
	prefCmd.AddCommand(prefGetCmd, prefSetCmd)

	RootCmd.AddCommand(memoryCmd)
	RootCmd.AddCommand(prefCmd)
}
