package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"enlist/internal/cooldown/gate"
	"enlist/pkg/domain"
)

type cooldownStatus struct {
	IdentityID    string     `json:"identity_id"`
	LastActionAt  *time.Time `json:"last_action_at"`
	Eligible      *bool      `json:"eligible,omitempty"`
	RemainingDays *int       `json:"remaining_days,omitempty"`
	AvailableAt   *time.Time `json:"available_at,omitempty"`
}

func newCooldownCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Query cooldown records",
	}
	cmd.AddCommand(newCooldownGetCmd(opts), newCooldownCheckCmd(opts))
	return cmd
}

func newCooldownGetCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <identity-id>",
		Short: "Show when an identity last applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseIdentityID(args[0])
			if err != nil {
				return err
			}
			store, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("read cooldown: %w", err)
			}
			status := cooldownStatus{IdentityID: id.String(), LastActionAt: rec.LastAction()}
			if asJSON {
				return writeJSON(cmd, status)
			}
			if status.LastActionAt == nil {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: never applied\n", id)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: last applied %s\n", id, status.LastActionAt.Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCooldownCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		at     string
	)
	cmd := &cobra.Command{
		Use:   "check <identity-id>",
		Short: "Evaluate whether an identity may apply now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseIdentityID(args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
			}
			store, cfg, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("read cooldown: %w", err)
			}
			decision := gate.New(cfg.Cooldown.Duration).Evaluate(now, rec.LastAction())

			status := cooldownStatus{
				IdentityID:   id.String(),
				LastActionAt: rec.LastAction(),
				Eligible:     &decision.Eligible,
			}
			if !decision.Eligible {
				status.RemainingDays = &decision.RemainingDays
				status.AvailableAt = &decision.AvailableAt
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			if decision.Eligible {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: eligible\n", id)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: cooldown active, %d day(s) remaining (available %s)\n",
				id, decision.RemainingDays, decision.AvailableAt.Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC3339 instant instead of now")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
