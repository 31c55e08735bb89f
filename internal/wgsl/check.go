// Package wgsl checks shader sources with the naga WGSL front end before a
// backend accepts them.
package wgsl

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rhi"
)

// Check parses and lowers source and verifies that it declares entryPoint
// for stage. Errors wrap rhi.ErrCreation. Stages without a WGSL
// equivalent only need a parseable module.
func Check(source, entryPoint string, stage rhi.ShaderStage) error {
	eps, err := EntryPoints(source)
	if err != nil {
		return err
	}
	want, ok := irStage(stage)
	for _, ep := range eps {
		if ep.Name != entryPoint {
			continue
		}
		if ok && ep.Stage != want {
			return fmt.Errorf("wgsl: entry point %q is not a %s shader: %w", entryPoint, stage, rhi.ErrCreation)
		}
		return nil
	}
	if !ok {
		return nil
	}
	return fmt.Errorf("wgsl: entry point %q not found: %w", entryPoint, rhi.ErrCreation)
}

// EntryPoints returns the entry points declared by source.
func EntryPoints(source string) ([]ir.EntryPoint, error) {
	module, err := lower(source)
	if err != nil {
		return nil, err
	}
	return module.EntryPoints, nil
}

// lower returns the IR of source, sharing results through the module cache.
func lower(source string) (*ir.Module, error) {
	return modules.getOrLower(source, lowerSource)
}

func lowerSource(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: parse: %v: %w", err, rhi.ErrCreation)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: lower: %v: %w", err, rhi.ErrCreation)
	}
	return module, nil
}

func irStage(s rhi.ShaderStage) (ir.ShaderStage, bool) {
	switch s {
	case rhi.ShaderStageVertex:
		return ir.StageVertex, true
	case rhi.ShaderStageFragment:
		return ir.StageFragment, true
	default:
		return 0, false
	}
}
