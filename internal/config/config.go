// Package config loads the YAML run configuration read by the memsim
// driver (cmd/memsim), mirroring the teacher's bundle metadata loader: a struct
// with yaml tags, a normalize() step that fills documented defaults, and a
// flat Load/WriteTemplate pair.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TLBKind selects which TLB variant a run exercises.
type TLBKind string

const (
	TLBFullyAssociative TLBKind = "fully-associative"
	TLBHierarchical     TLBKind = "hierarchical"
)

// Run describes one simulated run: the memory image to bring up, which TLB
// variant to exercise, and where to write dumps.
type Run struct {
	Version int `yaml:"version"`

	Memory struct {
		DumpFile        string `yaml:"dumpFile,omitempty"`
		DescriptionFile string `yaml:"descriptionFile,omitempty"`
		SizeBytes       uint64 `yaml:"sizeBytes,omitempty"`
	} `yaml:"memory"`

	TLB struct {
		Kind TLBKind `yaml:"kind,omitempty"`
	} `yaml:"tlb,omitempty"`

	Commands string `yaml:"commands"`

	Dump struct {
		Cache string `yaml:"cache,omitempty"`
		TLB   string `yaml:"tlb,omitempty"`
	} `yaml:"dump,omitempty"`

	// Trace, when set, makes the driver print cache/TLB state after every
	// command instead of only at the end of the run.
	Trace bool `yaml:"trace,omitempty"`
}

func (r *Run) normalize() {
	if r.Version == 0 {
		r.Version = 1
	}
	if r.TLB.Kind == "" {
		r.TLB.Kind = TLBFullyAssociative
	}
}

// Load reads and normalizes a Run configuration from a YAML file.
func Load(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("read %s: %w", path, err)
	}

	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("parse %s: %w", path, err)
	}
	run.normalize()

	if run.Memory.DumpFile == "" && run.Memory.DescriptionFile == "" {
		return Run{}, fmt.Errorf("%s: memory.dumpFile or memory.descriptionFile is required", path)
	}
	if run.Commands == "" {
		return Run{}, fmt.Errorf("%s: commands is required", path)
	}
	if run.TLB.Kind != TLBFullyAssociative && run.TLB.Kind != TLBHierarchical {
		return Run{}, fmt.Errorf("%s: tlb.kind %q must be %q or %q", path, run.TLB.Kind, TLBFullyAssociative, TLBHierarchical)
	}
	return run, nil
}

// WriteTemplate writes a starter Run configuration to path.
func WriteTemplate(path string, run Run) error {
	run.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&run); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return enc.Close()
}
