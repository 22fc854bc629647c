package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cara/internal/preflight"
	"cara/internal/providers"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the credential store, and stored provider keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := preflight.Options{Live: live}
			if store, err := ctx.credentialStore(); err == nil {
				opts.Store = store
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Credential store unavailable: %v\n", err)
			}
			if live {
				opts.Services = providers.Services(cfg, providers.WithLogger(ctx.loggerValue()))
			}

			results := preflight.RunAll(cmd.Context(), cfg, opts)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
			if opts.Store == nil || preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Validate each stored key with a live provider call")
	return cmd
}
