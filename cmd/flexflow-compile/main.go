// Command flexflow-compile is a debug CLI that drives the whole compile
// pipeline end to end: it lifts a small synthetic model (standing in for a
// user's logical layer graph, spec.md §4.2), searches for a parallel-config
// assignment (C7), applies it, fuses what can be fused (C9) when
// performFusion is set in the config, maps every
// tensor onto the task runtime's regions (C8), and serializes the result
// (C10) to a file. It exists to exercise the pipeline by hand, the way the
// teacher's own debug entry points exercise a StableHLO module end to end,
// not to be a production launcher.
package main

import (
	"context"
	"math/rand"
	"os"

	"github.com/williamberman/FlexFlow/assign"
	"github.com/williamberman/FlexFlow/catalog"
	"github.com/williamberman/FlexFlow/config"
	"github.com/williamberman/FlexFlow/fusion"
	"github.com/williamberman/FlexFlow/lift"
	"github.com/williamberman/FlexFlow/pcg"
	"github.com/williamberman/FlexFlow/regionmap"
	"github.com/williamberman/FlexFlow/search"
	"github.com/williamberman/FlexFlow/serialize"
	"github.com/williamberman/FlexFlow/sim"
	"github.com/williamberman/FlexFlow/types/machineview"
	"github.com/williamberman/FlexFlow/types/shapes"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("flexflow-compile failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, outPath string

	root := &cobra.Command{
		Use:           "flexflow-compile",
		Short:         "Lift, search, fuse, map, and serialize a demo model graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), configPath, outPath)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a flexflow config file (defaults stand if unset)")
	root.Flags().StringVar(&outPath, "out", "flexflow.graph", "path to write the serialized graph to")
	return root
}

// runCompile wires C3 -> C7 -> C5 -> C9 -> C8 -> C10 over a small synthetic
// demo network resembling spec.md §8 scenario S3: input -> linear(relu) ->
// dropout -> linear -> softmax.
func runCompile(ctx context.Context, configPath, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	log.Info().Interface("config", cfg).Msg("loaded config")

	numWorkers := cfg.WorkersPerNode
	if numWorkers <= 0 {
		numWorkers = 4
	}

	graph := buildDemoGraph(cfg.BatchSize)
	liftResult, err := lift.Lift(graph, lift.Options{OnlyDataParallel: cfg.OnlyDataParallel, NumWorkers: numWorkers})
	if err != nil {
		return errors.Wrap(err, "lifting demo graph")
	}
	model := liftResult.Model
	model.Logger = log

	budget := int(cfg.SearchBudget)
	if budget <= 0 {
		budget = 200
	}
	mode := sim.ModeTraining
	if cfg.ComputationMode == "inference" {
		mode = sim.ModeInference
	}

	searchResult, err := search.Run(ctx, rand.New(rand.NewSource(1)), model.Graph, liftResult.TerminalID, sim.ReferenceSimulator{}, search.Options{
		Budget:       budget,
		Alpha:        cfg.SearchAlpha,
		PPropagate:   0.5,
		TotalDevices: numWorkers,
		Mode:         mode,
		Logger:       log,
	})
	if err != nil {
		return errors.Wrap(err, "searching for a parallel-config assignment")
	}
	log.Info().Int("iterations", searchResult.Iterations).Float64("best_cost", searchResult.BestCost).Msg("search finished")

	assign.Apply(model.Graph, searchResult.Best)
	fusion.MarkInPlace(model.Graph)

	if cfg.PerformFusion {
		if err := fusion.Run(model.Graph, liftResult.TerminalID); err != nil {
			return errors.Wrap(err, "fusing operators")
		}
	}

	if err := mapRegions(model.Graph, mode == sim.ModeTraining); err != nil {
		return errors.Wrap(err, "mapping regions")
	}

	buf, err := serialize.Encode(model)
	if err != nil {
		return errors.Wrap(err, "serializing graph")
	}
	if err := os.WriteFile(outPath, buf, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", outPath)
	}
	log.Info().Str("path", outPath).Int("bytes", len(buf)).Msg("wrote serialized graph")
	return nil
}

// buildDemoGraph builds the scenario-S3-shaped logical layer graph: an
// input of [batchSize, 128], two Linear layers with a relu/dropout in
// between, and a trailing softmax.
func buildDemoGraph(batchSize int) *lift.Graph {
	if batchSize <= 0 {
		batchSize = 64
	}
	g := &lift.Graph{}
	in := g.AddInput(shapes.Shape{Dims: []int{batchSize, 128}, DType: shapes.Float})

	linear1 := g.AddLayer(catalog.LinearAttrs{OutChannels: 64, Activation: catalog.ActivationRelu, UseBias: true}, []lift.LayerRef{in}, 1)
	dropout := g.AddLayer(catalog.DropoutAttrs{Rate: 0.1, Seed: 1}, linear1, 1)
	linear2 := g.AddLayer(catalog.LinearAttrs{OutChannels: 10, UseBias: true}, dropout, 1)
	g.AddLayer(catalog.SoftmaxAttrs{Axis: 1}, linear2, 1)
	return g
}

// mapRegions runs C8 over every operator's outputs and weights once an
// assignment has stamped a machine view onto each (spec.md §4.6): outputs
// and shadow-gradient regions via MapWithGradient, Linear/Conv2D weights
// via their specialized variants, everything else via plain MapTensor.
func mapRegions(graph *pcg.PCG, training bool) error {
	for _, op := range graph.Operators {
		if op.MachineView == nil {
			continue
		}
		for _, out := range op.Outputs {
			if err := regionmap.MapWithGradient(out, *op.MachineView, training); err != nil {
				return errors.Wrapf(err, "operator %d (%s) output", op.ID, op.Kind)
			}
		}
		for i, w := range op.Weights {
			region, err := mapWeightRegion(op, w)
			if err != nil {
				return errors.Wrapf(err, "operator %d (%s) weight %d", op.ID, op.Kind, i)
			}
			w.Region = region
		}
	}
	return nil
}

func mapWeightRegion(op *pcg.Operator, weight *pcg.ParallelTensor) (*pcg.RegionHandle, error) {
	view := *op.MachineView
	switch op.Attrs.(type) {
	case catalog.LinearAttrs:
		if weight.Shape.Rank() == 2 {
			return regionmap.LinearWeightRegion(weight, view, weight.Sync)
		}
	case catalog.Conv2DAttrs:
		if weight.Shape.Rank() == 4 {
			return regionmap.ConvWeightRegion(weight, view, weight.Sync)
		}
	}
	return regionmap.MapTensor(weight.Shape, machineview.Make(1))
}
