package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/neurometa/gocbma/correct"
	"github.com/neurometa/gocbma/imaging"
	"github.com/neurometa/gocbma/logging"
	"github.com/neurometa/gocbma/meta/cbma"
	"github.com/neurometa/gocbma/results"
	"github.com/neurometa/gocbma/simulate"
)

type runOptions struct {
	estimator  string
	nStudies   int
	nNoiseFoci int
	sampleSize int
	fociPct    float64
	nIters     int
	seed       int64
	nCores     int
	q          float64
	voxelSize  float64
	gridSize   int
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a coordinate dataset, fit an estimator, and correct the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.estimator, "estimator", "ale", "estimator (ale, mkda, kda)")
	cmd.Flags().IntVar(&opts.nStudies, "studies", 20, "number of simulated studies")
	cmd.Flags().IntVar(&opts.nNoiseFoci, "noise-foci", 5, "noise foci per study")
	cmd.Flags().IntVar(&opts.sampleSize, "sample-size", 25, "participants per study")
	cmd.Flags().Float64Var(&opts.fociPct, "foci-pct", 0.9, "probability a study reports each ground-truth focus")
	cmd.Flags().IntVar(&opts.nIters, "iters", 1000, "Monte Carlo iterations")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "random seed")
	cmd.Flags().IntVar(&opts.nCores, "cores", 0, "worker count (0 = all CPUs)")
	cmd.Flags().Float64Var(&opts.q, "q", 0.05, "FDR acceptance level")
	cmd.Flags().Float64Var(&opts.voxelSize, "voxel-size", 2, "isotropic voxel size in mm")
	cmd.Flags().IntVar(&opts.gridSize, "grid-size", 30, "voxels per axis of the ellipsoid mask")
	return cmd
}

func runAnalysis(cmd *cobra.Command, opts runOptions) error {
	runID := uuid.New().String()
	log := logging.WithFields(logging.Fields{"run_id": runID, "estimator": opts.estimator})

	s := opts.voxelSize
	n := opts.gridSize
	aff := imaging.ScalingAffine(s, s, s, [3]float64{0, 0, 0})
	mask := imaging.NewEllipsoidMask([3]int{n, n, n}, aff)

	center := s * float64(n-1) / 2
	truth, ds, err := simulate.CreateCoordinateDataset(simulate.Options{
		Mask:           mask,
		NStudies:       opts.nStudies,
		Foci:           [][3]float64{{center, center, center}},
		FociPercentage: opts.fociPct,
		NNoiseFoci:     opts.nNoiseFoci,
		SampleSizes:    []int{opts.sampleSize},
		Seed:           opts.seed,
	})
	if err != nil {
		return err
	}
	log.Info("simulated dataset", logging.Fields{
		"n_experiments": ds.NumExperiments(),
		"total_foci":    ds.TotalFoci(),
		"ground_truth":  truth,
	})

	var est cbma.Estimator
	switch opts.estimator {
	case "ale":
		e := cbma.NewALE()
		e.NIters = opts.nIters
		e.NCores = opts.nCores
		e.Seed = opts.seed
		est = e
	case "mkda":
		e := cbma.NewMKDADensity()
		e.NIters = opts.nIters
		e.NCores = opts.nCores
		e.Seed = opts.seed
		est = e
	case "kda":
		e := cbma.NewKDA()
		e.NIters = opts.nIters
		e.NCores = opts.nCores
		e.Seed = opts.seed
		est = e
	default:
		return fmt.Errorf("unknown estimator %q: must be one of ale, mkda, kda", opts.estimator)
	}

	ctx := cmd.Context()
	r, err := est.Fit(ctx, ds)
	if err != nil {
		return err
	}
	log.Info("fit complete", logging.Fields{"maps": r.Names()})

	fdr := correct.NewFDRCorrector()
	fdr.Q = opts.q
	r, err = fdr.Transform(ctx, r)
	if err != nil {
		return err
	}

	fwe := correct.NewFWECorrector()
	fwe.Options.NIters = opts.nIters
	fwe.Options.NCores = opts.nCores
	fwe.Options.Seed = opts.seed
	r, err = fwe.Transform(ctx, r)
	if err != nil {
		return err
	}
	log.Info("correction complete", logging.Fields{"maps": r.Names()})

	return printSummaries(r)
}

func printSummaries(r *results.MetaResult) error {
	summaries := make([]*results.MapSummary, 0, len(r.Names()))
	for _, name := range r.Names() {
		s, err := r.Describe(name)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
