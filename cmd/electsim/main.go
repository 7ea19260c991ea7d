// Command electsim runs persona-based election simulations and manages
// their persisted experiment records.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"electsim/adapters/catalog"
	"electsim/adapters/excel"
	fsstore "electsim/adapters/store/fs"
	pgstore "electsim/adapters/store/postgres"
	"electsim/ai"
	"electsim/domain/core"
	"electsim/domain/experiment"
	"electsim/domain/vote"
	"electsim/internal"
	"electsim/internal/calibrate"
	"electsim/internal/compare"
	"electsim/internal/config"
	personagen "electsim/internal/persona"
	"electsim/internal/rng"
	"electsim/internal/simulate"
	"electsim/internal/validate"
	votecalc "electsim/internal/vote"
	"electsim/ports"
)

func main() {
	// A missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	log := internal.NewDefaultLogger()
	defer log.Sync()

	root := &cobra.Command{
		Use:           "electsim",
		Short:         "Persona-based election simulation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCommand(log),
		listCommand(log),
		showCommand(log),
		compareCommand(log),
		exportCommand(log),
	)

	if err := root.Execute(); err != nil {
		if core.IsDeterminismError(err) {
			log.Error("determinism violation: %v", err)
		} else {
			log.Error("%v", err)
		}
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (ports.ExperimentStore, error) {
	if cfg.Store.Backend == "postgres" {
		return pgstore.Open(cfg.Store.DatabaseURL)
	}
	return fsstore.New(cfg.Store.Dir)
}

func runCommand(log *internal.Logger) *cobra.Command {
	var (
		seed        int64
		personas    int
		workers     int
		districts   []string
		generator   string
		calibration float64
		boost       float64
		noiseOffset float64
		ruleOnly    bool
		description string
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a simulation and persist it as an experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Flags override environment defaults.
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Sim.Seed
			}
			if !cmd.Flags().Changed("personas") {
				personas = cfg.Sim.PersonasPerDistrict
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Sim.Workers
			}
			if !cmd.Flags().Changed("generator") {
				generator = cfg.Sim.GeneratorType
			}
			if !cmd.Flags().Changed("calibration") {
				calibration = cfg.Sim.CalibrationStrength
			}

			cat, err := catalog.Load(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			personaCfg, _, err := personagen.LoadConfig(cfg.Paths.PersonaConfig)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			streams := rng.New()
			var source ports.PersonaSource
			if generator == "demographic" {
				source = personagen.NewDemographicSource(personaCfg, streams)
			} else {
				source = personagen.NewArchetypeSource(personaCfg, streams)
			}

			weights := vote.DefaultWeights()
			if personaCfg.FactorWeights != nil {
				weights = *personaCfg.FactorWeights
			}
			calc := votecalc.NewCalculator(personaCfg, streams, votecalc.Options{
				Weights:          weights,
				TurnoutBoost:     boost,
				SwingNoiseOffset: noiseOffset,
			})

			opts := []simulate.Option{
				simulate.WithConfigPaths(cfg.Paths.PersonaConfig),
				simulate.WithMajorityThreshold(cfg.Sim.MajorityThreshold),
			}
			mode := "rule_only"
			if !ruleOnly && cfg.AI.APIKey != "" {
				opts = append(opts, simulate.WithDelegate(ai.NewDelegate(cfg.AI, cfg.Sim.BatchSize, log)))
				mode = "hybrid"
			} else if !ruleOnly {
				log.Warn("no OPENAI_API_KEY set, running rule-only")
			}

			eng := simulate.New(cat, source, calc, calibrate.New(streams, calibration), store, log, opts...)

			params := experiment.Parameters{
				Seed:                seed,
				PersonasPerDistrict: personas,
				GeneratorType:       source.Name(),
				Model:               cfg.AI.Model,
				BatchSize:           cfg.Sim.BatchSize,
				Workers:             workers,
				CalibrationStrength: calibration,
				TurnoutBoost:        boost,
				SwingNoiseOffset:    noiseOffset,
				FactorWeights:       weights,
				Mode:                mode,
				DistrictIDs:         districts,
			}

			artifacts, err := eng.Run(cmd.Context(), params, description, tags)
			if err != nil {
				return err
			}

			s := artifacts.Summary
			fmt.Printf("experiment %s completed\n", artifacts.Record.ID)
			fmt.Printf("  districts: %d (failed %d), turnout %.1f%%\n",
				s.TotalDistricts, len(s.FailedDistricts), s.NationalTurnoutRate*100)
			for p, split := range s.TotalSeats {
				fmt.Printf("  %-16s SMD %3d  PR %3d  total %3d\n", p, split.SMD, split.PR, split.Total)
			}
			// Hard validation failures exit nonzero; the run itself is
			// already persisted as completed.
			return validate.Err(*artifacts.ValidationReport)
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "global random seed")
	cmd.Flags().IntVar(&personas, "personas", 100, "personas per district")
	cmd.Flags().IntVar(&workers, "workers", 8, "district worker pool size (1 = sequential)")
	cmd.Flags().StringSliceVar(&districts, "districts", nil, "restrict to specific district ids")
	cmd.Flags().StringVar(&generator, "generator", "archetype", "persona strategy: archetype or demographic")
	cmd.Flags().Float64Var(&calibration, "calibration", 0.3, "calibration strength in [0,1]")
	cmd.Flags().Float64Var(&boost, "turnout-boost", 0, "additive turnout probability shift")
	cmd.Flags().Float64Var(&noiseOffset, "noise-offset", 0, "additive swing noise shift")
	cmd.Flags().BoolVar(&ruleOnly, "rule-only", false, "skip the generative tier entirely")
	cmd.Flags().StringVar(&description, "description", "", "free-form run description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags attached to the experiment record")
	return cmd
}

func listCommand(log *internal.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			metas, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Println("no experiments stored")
				return nil
			}
			fmt.Printf("%-36s %-10s %-20s %s\n", "ID", "STATUS", "CREATED", "DESCRIPTION")
			for _, m := range metas {
				fmt.Printf("%-36s %-10s %-20s %s\n",
					m.Record.ID, m.Record.Status,
					m.Record.CreatedAt.Format(time.DateTime), m.Record.Description)
			}
			return nil
		},
	}
}

func showCommand(log *internal.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <experiment-id>",
		Short: "Show one experiment's record and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			artifacts, err := store.Load(cmd.Context(), core.ExperimentID(args[0]))
			if core.IsNotFoundError(err) {
				return fmt.Errorf("no experiment %s; run `electsim list` to see stored runs", args[0])
			}
			if err != nil {
				return err
			}
			rec := artifacts.Record
			fmt.Printf("experiment:  %s\n", rec.ID)
			fmt.Printf("status:      %s\n", rec.Status)
			fmt.Printf("created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
			fmt.Printf("seed:        %d\n", rec.Parameters.Seed)
			fmt.Printf("generator:   %s\n", rec.Parameters.GeneratorType)
			fmt.Printf("mode:        %s\n", rec.Parameters.Mode)
			fmt.Printf("fingerprint: %s\n", rec.Fingerprint.Value)
			if rec.StoredError != "" {
				fmt.Printf("error:       %s\n", rec.StoredError)
			}
			if s := artifacts.Summary; s != nil {
				fmt.Printf("districts:   %d (failed %d)\n", s.TotalDistricts, len(s.FailedDistricts))
				fmt.Printf("turnout:     %.1f%%\n", s.NationalTurnoutRate*100)
				for p, split := range s.TotalSeats {
					fmt.Printf("  %-16s SMD %3d  PR %3d  total %3d\n", p, split.SMD, split.PR, split.Total)
				}
			}
			if r := artifacts.ValidationReport; r != nil {
				fmt.Printf("validation:  passed=%t warnings=%d errors=%d\n",
					r.Passed, len(r.Warnings), len(r.Errors))
			}
			return nil
		},
	}
}

func compareCommand(log *internal.Logger) *cobra.Command {
	var toActual bool
	cmd := &cobra.Command{
		Use:   "compare <run-a> [run-b]",
		Short: "Compare two runs, or a run against recorded actual results",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			a, err := store.Load(cmd.Context(), core.ExperimentID(args[0]))
			if err != nil {
				return err
			}
			sideA := compare.Side{Label: args[0], Districts: a.DistrictResults}
			if a.Summary != nil {
				sideA.Summary = *a.Summary
			}

			var sideB compare.Side
			switch {
			case toActual:
				actual, err := store.LoadActual(cmd.Context())
				if err != nil {
					return err
				}
				sideB = compare.Side{Label: "actual", Districts: actual}
			case len(args) == 2:
				b, err := store.Load(cmd.Context(), core.ExperimentID(args[1]))
				if err != nil {
					return err
				}
				sideB = compare.Side{Label: args[1], Districts: b.DistrictResults}
				if b.Summary != nil {
					sideB.Summary = *b.Summary
				}
			default:
				return fmt.Errorf("either a second run id or --actual is required")
			}

			fmt.Print(compare.Format(compare.Compare(sideA, sideB)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&toActual, "actual", false, "compare against recorded actual results")
	return cmd
}

func exportCommand(log *internal.Logger) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <experiment-id>",
		Short: "Export an experiment to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			artifacts, err := store.Load(cmd.Context(), core.ExperimentID(args[0]))
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".xlsx"
			}
			if err := excel.New().Export(out, *artifacts); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default <experiment-id>.xlsx)")
	return cmd
}
