package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"gorla/domain/assort"
	"gorla/domain/contest"
	"gorla/domain/core"
	"gorla/domain/round"
	"gorla/domain/stats"
	"gorla/internal"
	"gorla/internal/config"
	"gorla/internal/container"
	"gorla/internal/errors"
	"gorla/internal/estimate"
	"gorla/internal/testkit"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		internal.DefaultLogger.Debug("no .env file found, using system environment variables")
	}

	var configPath string
	rootCmd := &cobra.Command{
		Use:   "gorla-cli",
		Short: "Risk-limiting audit simulations and sample size estimates",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML audit configuration file")

	rootCmd.AddCommand(
		newSimulateCmd(&configPath),
		newEstimateCmd(&configPath),
		newMigrateCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// electionFlags describe the synthetic election shared by simulate and estimate
type electionFlags struct {
	ncards    int
	margin    float64
	fuzz      float64
	phantoms  int
	riskLimit float64
	seed      int64
	auditType string
	ntrials   int
	contestID string
}

func (f *electionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.ncards, "ncards", 10000, "Number of cards in the manifest")
	cmd.Flags().Float64Var(&f.margin, "margin", 0.04, "Reported diluted margin of the contest")
	cmd.Flags().Float64Var(&f.fuzz, "fuzz", 0, "Fraction of audited records that differ from the reported record")
	cmd.Flags().IntVar(&f.phantoms, "phantoms", 0, "Phantom cards added to the contest")
	cmd.Flags().Float64Var(&f.riskLimit, "risk-limit", 0, "Risk limit (overrides configuration)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Sampling seed (overrides configuration)")
	cmd.Flags().StringVar(&f.auditType, "type", "", "Audit type: clca|polling (overrides configuration)")
	cmd.Flags().IntVar(&f.ntrials, "ntrials", 0, "Monte Carlo trials per estimate (overrides configuration)")
	cmd.Flags().StringVar(&f.contestID, "contest", "contest0", "Id of the synthetic contest")
}

// auditConfig loads the configuration and applies the command line overrides
func (f *electionFlags) auditConfig(path string) (*config.AuditConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f.riskLimit > 0 {
		cfg.RiskLimit = f.riskLimit
	}
	if f.seed != 0 {
		cfg.Seed = f.seed
	}
	if f.auditType != "" {
		cfg.Type = config.AuditType(f.auditType)
	}
	if f.ntrials > 0 {
		cfg.NTrials = f.ntrials
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *electionFlags) election(seed int64) (*testkit.Election, error) {
	if f.margin <= 0 || f.margin >= 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("margin %v must be in (0, 1)", f.margin))
	}
	id, err := core.ParseContestID(f.contestID)
	if err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	spec := testkit.TwoCandidateSpec(id, assort.MarginToMean(f.margin))
	spec.Phantoms = f.phantoms
	return testkit.NewElectionGenerator(testkit.ElectionGeneratorConfig{
		NCards:   f.ncards,
		Contests: []testkit.ContestSpec{spec},
		Seed:     seed,
	}).Generate()
}

func newSimulateCmd(configPath *string) *cobra.Command {
	var flags electionFlags
	var persist bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a complete simulated audit of a synthetic election",
		Long: `Generate a two-candidate election, fuzz the audited records and run the
audit round by round until every contest is decided.

Round results are stored in PostgreSQL when --persist is set (DATABASE_URL).

Example: gorla-cli simulate --ncards 10000 --margin 0.04 --fuzz 0.01 --risk-limit 0.05 --seed 42 --type clca`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.auditConfig(*configPath)
			if err != nil {
				return err
			}
			return runSimulate(cmd.Context(), cfg, &flags, persist)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&persist, "persist", false, "Store round results in PostgreSQL")
	return cmd
}

func runSimulate(ctx context.Context, cfg *config.AuditConfig, flags *electionFlags, persist bool) error {
	election, err := flags.election(cfg.Seed)
	if err != nil {
		return err
	}
	mvrs := testkit.Fuzz(election.Cvrs, election.Contests, flags.fuzz, rand.New(rand.NewSource(cfg.Seed+1)))
	source := testkit.NewInMemoryMvrSource(testkit.MakePairs(mvrs, election.Cvrs))

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	if persist {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	audit, err := c.NewAudit(ctx, election.Contests, election.Cvrs)
	if err != nil {
		return err
	}

	fmt.Printf("🗳️  %s audit of %d cards, margin %.4f, fuzz %.4f, risk limit %.3f\n",
		cfg.Type, len(election.Cvrs), flags.margin, flags.fuzz, cfg.RiskLimit)
	fmt.Printf("Sample commitment: %s\n", audit.Commitment())

	history, runErr := audit.Run(ctx, source)
	for _, r := range history {
		printRound(r)
	}
	if runErr != nil {
		return runErr
	}
	fmt.Printf("\n%s", audit.Report())
	return nil
}

func printRound(r round.AuditRound) {
	fmt.Printf("\n📊 ROUND %d (%s)\n", r.Round, r.Phase)
	fmt.Printf("New cards: %d, sampled in total: %d, cap reached: %t\n", len(r.NewSampleIDs), r.SampledCount, r.HitCap)
	for _, c := range r.Contests {
		fmt.Printf("  %s: %s estimated %d (%d new)\n", c.ContestID, c.Status, c.EstSampleSize, c.EstNewSamples)
		for _, a := range c.Assertions {
			if a.Result == nil || a.Result.Round != r.Round {
				continue
			}
			fmt.Printf("    %s margin=%.4f %s\n", a.AssertionID, a.Margin, a.Result)
		}
		if c.Err != nil {
			fmt.Printf("    ❌ %v\n", c.Err)
		}
	}
}

func newEstimateCmd(configPath *string) *cobra.Command {
	var flags electionFlags

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the Monte Carlo sample size distribution for a contest",
		Long: `Estimate how many cards the first round of an audit of a synthetic
two-candidate contest would need.

Example: gorla-cli estimate --ncards 10000 --margin 0.02 --ntrials 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.auditConfig(*configPath)
			if err != nil {
				return err
			}
			return runEstimate(cmd.Context(), cfg, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runEstimate(ctx context.Context, cfg *config.AuditConfig, flags *electionFlags) error {
	election, err := flags.election(cfg.Seed)
	if err != nil {
		return err
	}
	c := election.Contests[0]
	if status, err := c.SetupStatus(); err != nil || status.Complete() {
		return fmt.Errorf("contest %s cannot be audited: %s %v", c.ID, status, err)
	}

	req := estimate.Request{Assertion: minMarginAssertion(cfg, c)}
	if cfg.Type == config.AuditTypeClca && flags.fuzz > 0 {
		mvrs := testkit.Fuzz(election.Cvrs, election.Contests, flags.fuzz, rand.New(rand.NewSource(cfg.Seed+1)))
		req.Pairs = testkit.MakePairs(mvrs, election.Cvrs)
	}

	ctr, err := container.New(cfg)
	if err != nil {
		return err
	}
	est, err := ctr.NewEstimator().EstimateAssertion(ctx, req)
	if err != nil {
		return err
	}

	res := est.Result
	fmt.Printf("📈 %s %s\n", est.AssertionID, est.Strategy)
	fmt.Printf("Trials: %d, success rate: %.3f\n", res.NTrials, res.SuccessRate())
	fmt.Printf("Samples needed: mean %.1f, median %.0f, %.0f%% quantile %d\n",
		res.Mean(), res.Percentile(50), cfg.Quantile*100, res.Quantile(cfg.Quantile))
	fmt.Printf("Estimated sample size: %d of %d\n", est.SampleSize, c.Nc)
	fmt.Printf("Deciles (%% of N): %v\n", res.Deciles())
	for _, status := range stats.AllStatuses() {
		if n := res.StatusCounts[status]; n > 0 {
			fmt.Printf("  %s: %d\n", status, n)
		}
	}
	return nil
}

func minMarginAssertion(cfg *config.AuditConfig, c *contest.Contest) assort.Assertion {
	assertions := assort.MakeAssertions(c, cfg.Type == config.AuditTypeClca, cfg.HasStyle)
	a, _ := assort.MinMarginAssertion(assertions)
	return a
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the round result tables in PostgreSQL (DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("✅ Database schema is up to date")
			return nil
		},
	}
}
