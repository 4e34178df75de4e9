package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func keysCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Print the currently valid public keys as a JWKS document",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, iss, err := setup(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer shutdown(cmd.Context(), iss, st)

			keys, err := iss.PublicKeys(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"keys": keys}); err != nil {
				return fmt.Errorf("failed to write public keys: %w", err)
			}
			return nil
		},
	}
}
