package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/commandecho/internal/credential"
	"github.com/felixgeelhaar/commandecho/internal/store"
)

// openVault opens only the store; key management must work even when the
// configured provider cannot start without a key.
func openVault(cmd *cobra.Command) (*credential.Vault, func(), error) {
	st, err := store.NewSQLiteStore(cfg.Memory.MemoryDBPath, cfg.Memory.MaxShortTermMemory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	v, err := credential.NewVault(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return v, func() { st.Close() }, nil
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys stored encrypted in the memory database",
}

var keySetCmd = &cobra.Command{
	Use:   "set [provider] [key]",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := v.Store(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored key for %s: %s\n", args[0], credential.Mask(args[1]))
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show [provider]",
	Short: "Show a masked API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer done()

		key, ok, err := v.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), credential.Mask(key))
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear [provider]",
	Short: "Delete a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := openVault(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := v.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed key for %s\n", args[0])
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyClearCmd)
	RootCmd.AddCommand(keyCmd)
}
