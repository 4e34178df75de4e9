package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheuscscp/fleet-issuer/internal/issuer"
)

func issueCmd(o *rootOptions) *cobra.Command {
	var (
		subject string
		claims  []string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue one token and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := parseClaims(claims)
			if err != nil {
				return err
			}

			_, st, iss, err := setup(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer shutdown(cmd.Context(), iss, st)

			token, _, err := iss.Issue(cmd.Context(), issuer.Claims{
				Subject: subject,
				Extra:   extra,
			}, time.Now())
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "Subject of the token (required)")
	cmd.Flags().StringArrayVar(&claims, "claim", nil,
		"Extra claim as key=value, repeatable. Values that parse as JSON are decoded, others are kept as strings")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func parseClaims(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	claims := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid claim '%s', must be key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		claims[name] = value
	}
	return claims, nil
}
