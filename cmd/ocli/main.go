// Package main provides the ocli command-line interface for chunked
// regrid weight generation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rochamatcomp/ocgis/internal/domain"
	"github.com/rochamatcomp/ocgis/internal/usecase"
)

const version = "0.1.0"

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ocli",
	Short:         "Command-line tools for chunked regridding operations",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// chunkedRWGFlags mirrors the chunked_rwg flag surface. Defaults follow
// the documented contract: merge and genweights on, spatial subset and
// persist off.
type chunkedRWGFlags struct {
	source         string
	destination    string
	weight         string
	nchunksDst     string
	noMerge        bool
	esmfSrcType    string
	esmfDstType    string
	noGenweights   bool
	regridMethod   string
	srcResolution  float64
	dstResolution  float64
	bufferDistance float64
	wd             string
	persist        bool
	spatialSubset  bool
	esmfExe        string
	nprocs         int
}

func newChunkedRWGCmd() *cobra.Command {
	flags := &chunkedRWGFlags{}

	cmd := &cobra.Command{
		Use:   "chunked_rwg",
		Short: "Execute regridding weight generation using a spatial decomposition",
		Long: `Splits the destination grid into chunks, subsets the source grid by each
chunk's buffered spatial extent, generates regridding weights per chunk
pair with ESMF, and merges the chunk weight files into a global weight
file. Grids must use a spherical lat/lon coordinate system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(flags)
			if err != nil {
				return err
			}
			return usecase.RunChunkedRWG(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.source, "source", "s", "", "Path to the source grid NetCDF file (required)")
	f.StringVarP(&flags.destination, "destination", "d", "", "Path to the destination grid NetCDF file (required)")
	f.StringVarP(&flags.nchunksDst, "nchunks_dst", "n", "",
		"Chunking decomposition for the destination grid: a single integer for unstructured grids (i.e. 100), two comma-separated values for the y and x split of rectangular grids (i.e. 10,20)")
	f.StringVarP(&flags.weight, "weight", "w", "", "Path to the output global weight file; required when merging")
	f.BoolVar(&flags.noMerge, "no_merge", false, "Do not merge weight file chunks into a global weight file")
	f.StringVar(&flags.esmfSrcType, "esmf_src_type", string(domain.GridTypeGRIDSPEC), "ESMF source grid type: GRIDSPEC, UGRID, or SCRIP")
	f.StringVar(&flags.esmfDstType, "esmf_dst_type", string(domain.GridTypeGRIDSPEC), "ESMF destination grid type: GRIDSPEC, UGRID, or SCRIP")
	f.BoolVar(&flags.noGenweights, "no_genweights", false, "Decomposition only: write chunk grid files without generating weights")
	f.StringVar(&flags.regridMethod, "esmf_regrid_method", string(domain.MethodConserve), "ESMF regrid method: CONSERVE or BILINEAR")
	f.Float64Var(&flags.srcResolution, "src_resolution", 0, "Overload the source grid spatial resolution; assumes an isomorphic structure")
	f.Float64Var(&flags.dstResolution, "dst_resolution", 0, "Overload the destination grid spatial resolution; assumes an isomorphic structure")
	f.Float64Var(&flags.bufferDistance, "buffer_distance", 0, "Spatial buffer distance (destination grid units) used when subsetting the source grid; computed from grid resolutions if not provided")
	f.StringVar(&flags.wd, "wd", "", "Working directory for intermediate files; must not exist (default: a fresh temporary directory)")
	f.BoolVar(&flags.persist, "persist", false, "Do not remove the working directory after execution")
	f.BoolVar(&flags.spatialSubset, "spatial_subset", false, "Subset the source grid by the destination grid's global extent instead of chunking; not chunk-parallel when generating weights")
	f.StringVar(&flags.esmfExe, "esmf_exe", "", "Path to the ESMF_RegridWeightGen executable (default: resolved from PATH)")
	f.IntVar(&flags.nprocs, "nprocs", runtime.NumCPU(), "Number of parallel chunk workers")

	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

func buildConfig(flags *chunkedRWGFlags) (usecase.RWGConfig, error) {
	var cfg usecase.RWGConfig

	srcType, err := domain.ParseGridType(flags.esmfSrcType)
	if err != nil {
		return cfg, fmt.Errorf("--esmf_src_type: %w", err)
	}
	dstType, err := domain.ParseGridType(flags.esmfDstType)
	if err != nil {
		return cfg, fmt.Errorf("--esmf_dst_type: %w", err)
	}
	method, err := domain.ParseRegridMethod(flags.regridMethod)
	if err != nil {
		return cfg, fmt.Errorf("--esmf_regrid_method: %w", err)
	}
	nchunks, err := parseNChunks(flags.nchunksDst)
	if err != nil {
		return cfg, fmt.Errorf("--nchunks_dst: %w", err)
	}

	cfg = usecase.RWGConfig{
		Source:         flags.source,
		Destination:    flags.destination,
		Weight:         flags.weight,
		NChunks:        nchunks,
		Merge:          !flags.noMerge,
		SrcType:        srcType,
		DstType:        dstType,
		GenWeights:     !flags.noGenweights,
		Method:         method,
		SrcResolution:  flags.srcResolution,
		DstResolution:  flags.dstResolution,
		BufferDistance: flags.bufferDistance,
		WD:             flags.wd,
		Persist:        flags.persist,
		SpatialSubset:  flags.spatialSubset,
		ESMFExecutable: flags.esmfExe,
		NWorkers:       flags.nprocs,
	}
	return cfg, nil
}

// parseNChunks parses the chunking decomposition: "100" or "10,20".
func parseNChunks(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return nil, fmt.Errorf("expected one or two comma-separated integers, got %q", s)
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid chunk count %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func main() {
	rootCmd.AddCommand(newChunkedRWGCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
