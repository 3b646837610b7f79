// Package esmf invokes the external ESMF weight generation executable.
// ESMF owns the regridding numerics; this adapter only builds the command
// line and surfaces the engine's own error reporting unmodified.
package esmf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rochamatcomp/ocgis/internal/domain"
)

// DefaultExecutable is the ESMF weight generation tool resolved from PATH
// when no explicit path is configured.
const DefaultExecutable = "ESMF_RegridWeightGen"

// Generator runs the ESMF executable for each job.
type Generator struct {
	// Executable overrides the tool path. Empty means DefaultExecutable.
	Executable string
}

// Args returns the command-line arguments for a job, excluding the
// executable itself.
func (g *Generator) Args(job domain.WeightJob) []string {
	args := []string{
		"-s", job.SrcPath,
		"-d", job.DstPath,
		"-w", job.WeightPath,
		"-m", methodArg(job.Method),
		"--src_type", string(job.SrcType),
		"--dst_type", string(job.DstType),
		"--ignore_degenerate",
		"--no_log",
	}
	return args
}

// Generate computes weights for one grid file pair. The engine's stderr is
// embedded in the returned error without modification so its diagnostics
// (non-spherical geometry, degenerate cells) reach the user intact.
func (g *Generator) Generate(ctx context.Context, job domain.WeightJob) error {
	exe := g.Executable
	if exe == "" {
		exe = DefaultExecutable
	}

	cmd := exec.CommandContext(ctx, exe, g.Args(job)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("weight generation failed for %s -> %s: %w", job.SrcPath, job.DstPath, err)
		}
		return fmt.Errorf("weight generation failed for %s -> %s: %w: %s", job.SrcPath, job.DstPath, err, msg)
	}
	return nil
}

func methodArg(m domain.RegridMethod) string {
	switch m {
	case domain.MethodBilinear:
		return "bilinear"
	default:
		return "conserve"
	}
}
