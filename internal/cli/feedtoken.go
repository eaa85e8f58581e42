package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/recur/signature"
)

// FeedTokenOptions holds flags for the feed-token command.
type FeedTokenOptions struct {
	*RootOptions
	OrganizationID string
	NewSecret      bool
}

// NewFeedTokenCommand creates the feed-token command.
func NewFeedTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed-token",
		Short: "Print the calendar feed token for an organization",
		Long: `Print the token that unlocks an organization's calendar feed, signed
with the configured feed_secret. With --new-secret, print a fresh secret
for the config file instead.

Example:
  recurd feed-token --config recurd.yaml --org org_1
  recurd feed-token --new-secret`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.NewSecret {
				fmt.Fprintln(cmd.OutOrStdout(), signature.GenerateSecret())
				return nil
			}
			if opts.OrganizationID == "" {
				return errors.New("--org is required")
			}

			cfg, err := Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.FeedSecret == "" {
				return errors.New("feed_secret is not configured")
			}

			fmt.Fprintln(cmd.OutOrStdout(), signature.FeedToken(cfg.FeedSecret, opts.OrganizationID))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.OrganizationID, "org", "", "organization ID")
	cmd.Flags().BoolVar(&opts.NewSecret, "new-secret", false, "generate a new feed secret")

	return cmd
}
