package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/skill-progression/config"
	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/application/query"
	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
	"github.com/alem-hub/skill-progression/internal/infrastructure/taxonomy"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT
// ══════════════════════════════════════════════════════════════════════════════

type rootOptions struct {
	patterns []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "skillctl",
		Short:         "Validate, inspect and simulate skill taxonomies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVarP(&opts.patterns, "taxonomy", "t", []string{"taxonomy/*.yaml"},
		"taxonomy file globs")

	root.AddCommand(
		newValidateCmd(opts),
		newInspectCmd(opts),
		newSimulateCmd(opts),
		newFlagsCmd(),
	)
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATE
// ══════════════════════════════════════════════════════════════════════════════

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check taxonomy files against the schema and build every tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				var err error
				if files, err = taxonomy.Expand(opts.patterns...); err != nil {
					return err
				}
			}
			return runValidate(cmd.OutOrStdout(), files)
		},
	}
}

func runValidate(out io.Writer, files []string) error {
	var failed int
	for _, f := range files {
		if err := validateFile(f); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", f, err)
			continue
		}
		fmt.Fprintf(out, "ok    %s\n", f)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(files))
	}

	// Files may be valid alone but collide once registered together.
	catalog, err := taxonomy.LoadFiles(files...)
	if err != nil {
		return err
	}
	if _, err := buildRegistry(catalog); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	fmt.Fprintf(out, "catalog %s: %d trees, %d nodes\n", shortDigest(catalog.Digest), len(catalog.Trees), catalog.CountNodes())
	return nil
}

func validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	defs, err := taxonomy.Parse(filepath.Base(path), data)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := skilltree.BuildTree(def); err != nil {
			return fmt.Errorf("tree %q: %w", def.Name, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INSPECT
// ══════════════════════════════════════════════════════════════════════════════

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var tree string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the trees of the taxonomy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, catalog, err := loadRegistry(opts.patterns)
			if err != nil {
				return err
			}
			return runInspect(cmd.OutOrStdout(), registry, catalog.Digest, tree)
		},
	}
	cmd.Flags().StringVar(&tree, "tree", "", "print only this tree")
	return cmd
}

func runInspect(out io.Writer, registry *skilltree.Registry, digest, only string) error {
	fmt.Fprintf(out, "catalog %s\n", shortDigest(digest))

	printed := 0
	for _, t := range registry.Trees() {
		if only != "" && t.Name() != only {
			continue
		}
		printed++
		fmt.Fprintf(out, "\n%s (weight %.2f, %d nodes)\n", t.Name(), t.Weight(), t.Len())
		t.Walk(func(n *skilltree.Node) bool {
			fmt.Fprintf(out, "%s%s  %s cap=%d\n", strings.Repeat("  ", n.Depth()), n.ID(), n.Type(), n.Capacity())
			return true
		})
	}
	if only != "" && printed == 0 {
		return fmt.Errorf("tree %q not found", only)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATE
// ══════════════════════════════════════════════════════════════════════════════

type grant struct {
	actor  string
	skill  string
	amount int64
}

// parseGrant parses "actor:skill=xp".
func parseGrant(s string) (grant, error) {
	lhs, xp, ok := strings.Cut(s, "=")
	if !ok {
		return grant{}, fmt.Errorf("grant %q: want actor:skill=xp", s)
	}
	actor, skill, ok := strings.Cut(lhs, ":")
	if !ok || actor == "" || skill == "" {
		return grant{}, fmt.Errorf("grant %q: want actor:skill=xp", s)
	}
	amount, err := strconv.ParseInt(xp, 10, 64)
	if err != nil {
		return grant{}, fmt.Errorf("grant %q: %w", s, err)
	}
	return grant{actor: actor, skill: skill, amount: amount}, nil
}

type simulateOptions struct {
	grants        []string
	threshold     int64
	noClustering  bool
	noHyperBonus  bool
	noPenalty     bool
	dynamicIDs    bool
	skillForMults string
}

type simulation struct {
	Analysis    *query.ActorAnalysisDTO `json:"analysis"`
	Weights     *query.WeightsDTO       `json:"weights"`
	Multipliers *query.MultipliersDTO   `json:"multipliers,omitempty"`
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply grants to fresh ledgers and print the resulting analysis as JSON",
		Example: `  skillctl simulate -t 'taxonomy/*.yaml' \
    --grant alice:farming.crops.wheat=400 --grant alice:mining.ore=50`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, _, err := loadRegistry(opts.patterns, skilltree.WithDynamicIDs(sim.dynamicIDs))
			if err != nil {
				return err
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), registry, sim)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&sim.grants, "grant", "g", nil, "grant in the form actor:skill=xp (repeatable)")
	f.Int64Var(&sim.threshold, "dominant-threshold", int64(progression.DefaultTuning().DominantPathThreshold), "dominant path threshold")
	f.BoolVar(&sim.noClustering, "no-clustering", false, "disable dynamic clustering")
	f.BoolVar(&sim.noHyperBonus, "no-hyper-bonus", false, "disable the hyper-specialization bonus")
	f.BoolVar(&sim.noPenalty, "no-penalty", false, "disable the specialist penalty")
	f.BoolVar(&sim.dynamicIDs, "dynamic-ids", true, "resolve unknown ids under their nearest authored ancestor")
	f.StringVar(&sim.skillForMults, "multipliers", "", "also print multipliers for this skill")
	_ = cmd.MarkFlagRequired("grant")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, registry *skilltree.Registry, sim *simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tuning := progression.DefaultTuning()
	tuning.DominantPathThreshold = shared.XP(sim.threshold)
	tuning.DynamicClustering = !sim.noClustering
	tuning.HyperBonus = !sim.noHyperBonus
	tuning.SpecialistPenalty = !sim.noPenalty
	if err := tuning.Validate(); err != nil {
		return err
	}

	book := ledger.NewBook(nil)
	analyzer := progression.NewAnalyzer(registry, tuning, nil)
	aggregator := progression.NewAggregator(registry, nil)
	grantXP := command.NewGrantXPHandler(book, registry, nil, command.DefaultGrantXPHandlerConfig())

	seen := make(map[string]bool)
	var actors []string
	for _, raw := range sim.grants {
		g, err := parseGrant(raw)
		if err != nil {
			return err
		}
		if _, err := grantXP.Handle(ctx, command.GrantXPCommand{ActorID: g.actor, SkillID: g.skill, Amount: g.amount}); err != nil {
			return err
		}
		if !seen[g.actor] {
			seen[g.actor] = true
			actors = append(actors, g.actor)
		}
	}
	sort.Strings(actors)

	refresh := command.NewRefreshProgressionHandler(book, analyzer, aggregator, nil)
	weights := query.NewGetWeightsHandler(aggregator)
	mults := query.NewGetMultipliersHandler(book, registry, analyzer)

	report := make(map[string]simulation, len(actors))
	for _, actor := range actors {
		res, err := refresh.Handle(ctx, command.RefreshProgressionCommand{ActorID: actor})
		if err != nil {
			return err
		}
		w, err := weights.Handle(ctx, query.GetWeightsQuery{ActorID: actor})
		if err != nil {
			return err
		}
		entry := simulation{Analysis: query.NewActorAnalysisDTO(res.Analysis), Weights: w}
		if sim.skillForMults != "" {
			m, err := mults.Handle(ctx, query.GetMultipliersQuery{ActorID: actor, SkillID: sim.skillForMults})
			if err != nil {
				return err
			}
			entry.Multipliers = m
		}
		report[actor] = entry
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// ══════════════════════════════════════════════════════════════════════════════
// FLAGS
// ══════════════════════════════════════════════════════════════════════════════

func newFlagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List engine feature flags as the worker would resolve them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, f := range config.LoadFeatureFlags().All() {
				fmt.Fprintf(out, "%-28s %-5t %3d%%  %s\n", f.Name, f.Enabled, f.RolloutPercent, f.Description)
			}
			return nil
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func loadRegistry(patterns []string, opts ...skilltree.RegistryOption) (*skilltree.Registry, skilltree.Catalog, error) {
	files, err := taxonomy.Expand(patterns...)
	if err != nil {
		return nil, skilltree.Catalog{}, err
	}
	catalog, err := taxonomy.LoadFiles(files...)
	if err != nil {
		return nil, skilltree.Catalog{}, err
	}
	registry, err := buildRegistry(catalog, opts...)
	if err != nil {
		return nil, skilltree.Catalog{}, err
	}
	return registry, catalog, nil
}

func buildRegistry(catalog skilltree.Catalog, opts ...skilltree.RegistryOption) (*skilltree.Registry, error) {
	trees, err := catalog.Build()
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, errors.New("catalog has no trees")
	}
	registry := skilltree.NewRegistry(opts...)
	if err := registry.Reload(trees...); err != nil {
		return nil, err
	}
	return registry, nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
