package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/recur"
	"github.com/xraph/recur/recurrence"
)

// MaterializeOptions holds flags for the materialize command.
type MaterializeOptions struct {
	*RootOptions
	OrganizationID string
	Horizon        string
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize an organization's instances up to a horizon",
		Long: `Advance every rule of an organization whose checkpoint is behind the
horizon and print the result as JSON. The horizon defaults to, and may not
exceed, today plus the configured lookahead.

Example:
  recurd materialize --org org_1 --horizon 2027-06-30`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMaterialize(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.OrganizationID, "org", "", "organization ID (required)")
	cmd.Flags().StringVar(&opts.Horizon, "horizon", "", "horizon date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runMaterialize(cmd *cobra.Command, opts *MaterializeOptions) error {
	var horizon time.Time
	if opts.Horizon != "" {
		t, err := recurrence.ParseDate(opts.Horizon)
		if err != nil {
			return fmt.Errorf("invalid --horizon: %w", err)
		}
		horizon = t
	}

	cfg, err := Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := recur.New(append(cfg.ToRecurOptions(),
		recur.WithStore(st),
		recur.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
	)...)
	if err != nil {
		return err
	}
	limit := r.Horizon()
	switch {
	case horizon.IsZero():
		horizon = limit
	case horizon.After(limit):
		return fmt.Errorf("--horizon %s is beyond the lookahead limit %s",
			recurrence.FormatDate(horizon), recurrence.FormatDate(limit))
	}

	res, err := r.Materialize(ctx, opts.OrganizationID, horizon)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return encErr
	}
	return err
}
