package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/YumeNoTenshi/ecoscan/internal/config"
	"github.com/YumeNoTenshi/ecoscan/internal/ecotags"
	"github.com/YumeNoTenshi/ecoscan/internal/importer"
	"github.com/YumeNoTenshi/ecoscan/internal/lca"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/planner"
	"github.com/YumeNoTenshi/ecoscan/internal/report"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/pkg/cloud"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "estimate",
		short: "Estimate the lifecycle footprint of a workload",
		usage: "ecoscan estimate [workload.yaml]",
		long: `Estimate training, inference and embodied emissions and the energy cost
of a workload described in a YAML or JSON file (or markdown frontmatter).

Without a file the default workload is estimated.
`,
		run: runEstimate,
	},
	{
		name:  "plan",
		short: "Rank the optimization strategies for a workload",
		usage: "ecoscan plan [workload.yaml]",
		long: `Simulate every optimization strategy against the workload and list
them by the CO2 they would save, with a combined projection.
`,
		run: runPlan,
	},
	{
		name:  "lab",
		short: "Toggle strategies interactively",
		usage: "ecoscan lab [workload.yaml]",
		long: `Open the strategy lab for a workload. Keys:

  up/down, j/k  move
  enter, space  apply or revert the selected strategy
  1-6           apply or revert a strategy directly
  s             save the current state as a history record
  q             quit

Saved records are printed as JSON on exit.
`,
		run: runLab,
	},
	{
		name:  "report",
		short: "Write the report export of a workload",
		usage: "ecoscan report [workload.yaml] [output.json]",
		long: `Write the JSON report of a workload. Without an output path the report
is written to ecoscan_report_<unix-millis>.json in the current directory.
`,
		run: runReport,
	},
	{
		name:  "discover",
		short: "Build a workload from running cloud GPU instances",
		usage: "ecoscan discover",
		long: `List running GPU instances in the account named by CLOUD_PROVIDER
(aws or gcp, with AWS_REGION or GCP_PROJECT and GCP_ZONE) and estimate
the workload they imply.
`,
		run: runDiscover,
	},
}

var stdout io.Writer = os.Stdout

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "ecoscan: AI workload lifecycle carbon and cost estimation\n\n")
	fmt.Fprintf(w, "Usage:\n  ecoscan <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'ecoscan help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "ecoscan: unknown command %q\n\nRun 'ecoscan help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(stdout, args[1])
		} else {
			printUsage(stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'ecoscan help' for usage.", args[0])
}

// loadWorkload reads and validates the workload at path, or returns the
// default workload when path is empty. A document that cannot be parsed
// yields the labeled fallback baseline.
func loadWorkload(path string) (models.WorkloadConfig, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return models.WorkloadConfig{}, fmt.Errorf("read workload: %w", err)
	}
	res := importer.New(nil, nil, slog.With("path", path)).Import(context.Background(), doc)
	valid, subs := session.Validate(res.Config)
	for _, s := range subs {
		slog.Warn("workload value replaced", "field", s.Field, "rejected", s.Rejected, "used", s.Used)
	}
	return valid, nil
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// ---------------------------------------------------------------------------
// estimate
// ---------------------------------------------------------------------------

func runEstimate(args []string) error {
	cfg, err := loadWorkload(optionalArg(args, 0))
	if err != nil {
		return err
	}
	printEstimate(stdout, cfg)
	return nil
}

func printEstimate(w io.Writer, cfg models.WorkloadConfig) {
	m := lca.Estimate(cfg)
	profile := ecotags.NewTagManager().Profile(cfg, m)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Hardware\t%d x %s\n", cfg.GPUCount, cfg.HardwareModel)
	fmt.Fprintf(tw, "Training\t%.2f kWh\t%.2f kg CO2\t%s, %gh\n", m.TrainingEnergyKWh, m.TrainingCo2Kg, cfg.TrainingRegion, cfg.TrainingHours)
	fmt.Fprintf(tw, "Inference\t%.2f kWh/yr\t%.2f kg CO2/yr\t%s\n", m.InferenceEnergyKWh, m.InferenceCo2Kg, cfg.InferenceRegion)
	fmt.Fprintf(tw, "Embodied\t\t%.2f kg CO2\n", m.EmbodiedCo2Kg)
	fmt.Fprintf(tw, "Total\t\t%.2f kg CO2\tover %g years\n", m.TotalCo2Kg, cfg.ProjectLifetimeYears)
	fmt.Fprintf(tw, "Cost\t\tEUR %.2f\n", m.TotalCostEuro)
	fmt.Fprintf(tw, "Grade\t\t%s\n", m.Grade)
	fmt.Fprintf(tw, "Eco score\t\t%.0f\t%s\n", profile.EcoScore, strings.Join(profile.Tags, ", "))
	tw.Flush()

	for _, note := range cfg.AuditNotes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}
	for _, rec := range cfg.Recommendations {
		fmt.Fprintf(w, "  recommendation: %s\n", rec)
	}
}

// ---------------------------------------------------------------------------
// plan
// ---------------------------------------------------------------------------

func runPlan(args []string) error {
	cfg, err := loadWorkload(optionalArg(args, 0))
	if err != nil {
		return err
	}
	printPlan(stdout, planner.NewPlanner(planner.PlannerConfig{}).Plan(cfg, cfg))
	return nil
}

func printPlan(w io.Writer, plan planner.Plan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "PRIORITY\tSTRATEGY\tCO2 SAVED (kg)\tEUR SAVED\tGRADE\n")
	for _, step := range plan.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%s\n", step.Priority, step.Title, step.Co2SavingKg, step.CostSavingEuro, step.Projected.Grade)
	}
	tw.Flush()
	fmt.Fprintf(w, "\ncurrent %.2f kg CO2 (%s), all strategies %.2f kg CO2 (%s)\n",
		plan.Current.TotalCo2Kg, plan.Current.Grade, plan.Combined.TotalCo2Kg, plan.Combined.Grade)
}

// ---------------------------------------------------------------------------
// report
// ---------------------------------------------------------------------------

func runReport(args []string) error {
	cfg, err := loadWorkload(optionalArg(args, 0))
	if err != nil {
		return err
	}
	appCfg, err := config.Load()
	if err != nil {
		return err
	}

	rep := report.NewBuilder().Report(cfg, lca.Estimate(cfg), appCfg.DefaultRequester)
	out := optionalArg(args, 1)
	if out == "" {
		out = report.Filename(rep)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)
	return nil
}

// ---------------------------------------------------------------------------
// discover
// ---------------------------------------------------------------------------

func runDiscover(args []string) error {
	appCfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	provider, err := cloud.NewProvider(ctx, cloud.ProviderConfig{
		Kind:       appCfg.CloudProvider,
		AWSRegion:  appCfg.AWSRegion,
		GCPProject: appCfg.GCPProject,
		GCPZone:    appCfg.GCPZone,
	})
	if err != nil {
		return err
	}

	inv, err := provider.DiscoverGPUInstances(ctx)
	if err != nil {
		return fmt.Errorf("discover %s: %w", provider.Name(), err)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "INSTANCE\tTYPE\tACCELERATOR\tGPUS\n")
	for _, inst := range inv.Instances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", inst.ID, inst.InstanceType, inst.AcceleratorType, inst.GPUCount)
	}
	tw.Flush()
	fmt.Fprintln(stdout)

	cfg, err := importer.FromInventory(inv, session.DefaultConfig())
	if err != nil {
		return err
	}
	valid, _ := session.Validate(cfg)
	printEstimate(stdout, valid)
	return nil
}

// ---------------------------------------------------------------------------
// lab
// ---------------------------------------------------------------------------

func runLab(args []string) error {
	cfg, err := loadWorkload(optionalArg(args, 0))
	if err != nil {
		return err
	}
	m := newLabModel(session.New("lab", session.SourceManual, cfg, slog.Default()), report.NewBuilder())

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}
	final, ok := result.(labModel)
	if !ok {
		return fmt.Errorf("unexpected lab state")
	}
	if len(final.saved) == 0 {
		return nil
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(final.saved)
}

func main() {
	appCfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: appCfg.SlogLevel()})))

	if err := dispatch(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
