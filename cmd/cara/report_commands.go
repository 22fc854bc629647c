package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cara/internal/ai"
	"cara/internal/analysis"
	"cara/internal/ncr"
	"cara/internal/prompt"
	"cara/internal/textutil"
)

func newDeadlinesCommand() *cobra.Command {
	var closingDate string
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "deadlines",
		Short:       "Print the CARA due dates for a closing-meeting date",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(closingDate) == "" {
				return errors.New("--closing-date is required")
			}
			if _, ok := prompt.ParseDate(closingDate); !ok {
				return fmt.Errorf("--closing-date %q is not a date (use YYYY-MM-DD)", closingDate)
			}
			schedule := prompt.Schedule(closingDate)
			if asJSON {
				return writeJSON(cmd, schedule)
			}
			rows := make([][]string, 0, len(schedule))
			for _, m := range schedule {
				rows = append(rows, []string{m.Label, m.Section.Code(), "+" + strconv.Itoa(m.OffsetDays), m.Date})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Milestone", "Section", "Days", "Due"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVar(&closingDate, "closing-date", "", "Closing meeting date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

type itemFlags struct {
	report      string
	item        string
	section     string
	closingDate string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.report, "report", "r", "", "Report file (.json, .yaml, .yml)")
	cmd.Flags().StringVarP(&f.item, "item", "i", "", "Item id, NC number, or identifier")
	cmd.Flags().StringVarP(&f.section, "section", "s", "", "Section: "+sectionNames())
	cmd.Flags().StringVar(&f.closingDate, "closing-date", "", "Closing meeting date; defaults to the report's closingMeetingDate")
	_ = cmd.MarkFlagRequired("report")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("section")
}

// resolve loads the report and builds the analysis request.
func (f *itemFlags) resolve() (analysis.Request, error) {
	section, err := prompt.ParseSection(f.section)
	if err != nil {
		return analysis.Request{}, fmt.Errorf("%w (choose one of %s)", err, sectionNames())
	}
	report, err := ncr.LoadReport(f.report)
	if err != nil {
		return analysis.Request{}, err
	}
	item, err := report.Find(f.item)
	if err != nil {
		return analysis.Request{}, err
	}
	return analysis.Request{
		Item:        item,
		Section:     section,
		ClosingDate: textutil.FirstNonEmpty(f.closingDate, report.BasicData.ClosingMeetingDate),
	}, nil
}

func sectionNames() string {
	names := make([]string, 0, len(prompt.Sections()))
	for _, s := range prompt.Sections() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func newPromptCommand(ctx *commandContext) *cobra.Command {
	var flags itemFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show the prompt for one section without calling a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.resolve()
			if err != nil {
				return err
			}
			builder, err := ctx.promptBuilder()
			if err != nil {
				return err
			}
			p, err := analysis.NewService(nil, analysis.WithBuilder(builder)).Preview(req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, p)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== system ===")
			fmt.Fprintln(out, p.System)
			fmt.Fprintln(out, "=== user ===")
			fmt.Fprintln(out, p.User)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var flags itemFlags
	var providerFlag string
	var timeout time.Duration
	var outPath string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft one section with the selected provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.resolve()
			if err != nil {
				return err
			}
			if strings.TrimSpace(providerFlag) != "" {
				if req.Provider, err = parseProviderArg(providerFlag); err != nil {
					return err
				}
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if timeout > 0 {
				cfg.AI.TimeoutSeconds = int((timeout + time.Second - 1) / time.Second)
			}
			builder, err := ctx.promptBuilder()
			if err != nil {
				return err
			}
			m, err := ctx.manager(cmd.Context())
			if err != nil {
				return err
			}
			svc := analysis.NewService(m,
				analysis.WithBuilder(builder),
				analysis.WithLogger(ctx.loggerValue()),
				analysis.WithRequestTimeout(cfg.RequestTimeout()),
			)
			res, err := svc.Generate(cmd.Context(), req)
			if err != nil {
				var failure *analysis.Failure
				if errors.As(err, &failure) {
					if failure.CorrelationID != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "Details: cara logs --correlation-id %s\n", failure.CorrelationID)
					}
					return errors.New(failure.UserMessage())
				}
				return err
			}
			return writeText(cmd, outputTarget(outPath, req, res.Provider), res.Text)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&providerFlag, "provider", "p", "", "Provider for this call; defaults to the current provider")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout, e.g. 45s (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the draft to this file, or into this directory with a derived name")
	return cmd
}

// outputTarget returns path unchanged unless it names an existing directory,
// in which case a file name is derived from the item and section.
func outputTarget(path string, req analysis.Request, provider ai.ProviderID) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return path
	}
	name := textutil.Slug(req.Item.Label(), string(req.Section), string(provider)) + ".txt"
	return filepath.Join(path, name)
}
