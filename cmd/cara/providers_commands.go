package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cara/internal/ai"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "providers",
		Aliases: []string{"provider"},
		Short:   "Manage AI providers and their API keys",
	}
	cmd.AddCommand(newProvidersListCommand(ctx))
	cmd.AddCommand(newProvidersSetKeyCommand(ctx))
	cmd.AddCommand(newProvidersClearKeyCommand(ctx))
	cmd.AddCommand(newProvidersUseCommand(ctx))
	cmd.AddCommand(newProvidersSetModelCommand(ctx))
	cmd.AddCommand(newProvidersModelsCommand(ctx))
	cmd.AddCommand(newProvidersExportCommand(ctx))
	cmd.AddCommand(newProvidersImportCommand(ctx))
	return cmd
}

func parseProviderArg(value string) (ai.ProviderID, error) {
	id, err := ai.ParseProviderID(value)
	if err != nil {
		names := make([]string, 0, len(ai.AllProviders()))
		for _, p := range ai.AllProviders() {
			names = append(names, string(p))
		}
		return "", fmt.Errorf("%w (choose one of %s)", err, strings.Join(names, ", "))
	}
	return id, nil
}

func newProvidersListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show every provider and whether it is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			statuses := m.AllProviders()
			if asJSON {
				return writeJSON(cmd, statuses)
			}
			rows := make([][]string, 0, len(statuses))
			for _, st := range statuses {
				present, length, _ := m.KeyStatus(st.Info.Name)
				key := "-"
				if present {
					key = fmt.Sprintf("set (%d chars)", length)
				}
				model := st.Config.Model
				if model == "" {
					model = st.Info.DefaultModel + " (default)"
				}
				rows = append(rows, []string{
					string(st.Info.Name),
					st.Info.DisplayName,
					textOrDash(st.Current, "*"),
					yesNo(st.Config.Enabled),
					key,
					model,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Provider", "Name", "Current", "Configured", "Key", "Model"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newProvidersSetKeyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <provider> <key>",
		Short: "Validate an API key with a live call and store it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderArg(args[0])
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.SetProviderAPIKey(cmd.Context(), id, strings.TrimSpace(args[1])); err != nil {
				if errors.Is(err, ai.ErrInvalidAPIKey) {
					info, _ := m.ProviderInfo(id)
					return fmt.Errorf("%s rejected the key: %w", info.DisplayName, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key for %s validated and stored\n", id)
			return nil
		},
	}
}

func newProvidersClearKeyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-key <provider>",
		Short: "Forget a provider's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderArg(args[0])
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.ClearProviderAPIKey(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key for %s removed\n", id)
			return nil
		},
	}
}

func newProvidersUseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "use <provider>",
		Short: "Select the provider used when --provider is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderArg(args[0])
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.SetCurrentProvider(id); err != nil {
				return err
			}
			if err := m.Persist(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Current provider: %s\n", id)
			if !m.IsProviderConfigured(id) {
				fmt.Fprintf(out, "Note: %s has no API key yet; run `cara providers set-key %s <key>`\n", id, id)
			}
			return nil
		},
	}
}

func newProvidersSetModelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-model <provider> <model>",
		Short: "Choose the default model for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderArg(args[0])
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.SetProviderModel(id, args[1]); err != nil {
				return err
			}
			if err := m.Persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model for %s: %s\n", id, strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newProvidersModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models <provider>",
		Short: "List the models a provider offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProviderArg(args[0])
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			info, err := m.ProviderInfo(id)
			if err != nil {
				return err
			}
			cfg, _ := m.ProviderConfig(id)
			selected := textOr(cfg.Model, info.DefaultModel)
			out := cmd.OutOrStdout()
			for _, model := range info.AvailableModels {
				marker := " "
				if model == selected {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, model)
			}
			return nil
		},
	}
}

func newProvidersExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print provider settings as JSON (keys are never included)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd, m.ExportConfigs())
		},
	}
}

func newProvidersImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Apply settings produced by `providers export`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var configs map[ai.ProviderID]ai.ExportedConfig
			if err := readJSON(cmd, args[0], &configs); err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.ImportConfigs(configs); err != nil {
				return err
			}
			if err := m.Persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported settings for %d providers\n", len(configs))
			return nil
		},
	}
}

func textOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func textOrDash(cond bool, value string) string {
	if cond {
		return value
	}
	return ""
}
