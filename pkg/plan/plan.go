// Package plan reads and writes task plan files. A plan file lets a run
// skip the planner and execute a reviewed, hand-edited task list.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"codewright/pkg/proto"
)

// Document is the on-disk plan format.
type Document struct {
	// Request is the original change request the tasks implement.
	Request string `yaml:"request"`
	// Tasks in execution order; depends_on may only reference earlier
	// entries.
	Tasks []proto.Task `yaml:"tasks"`
}

// Load reads a plan file and validates its ordering invariant.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading plan file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	if len(doc.Tasks) == 0 {
		return Document{}, fmt.Errorf("plan file %s contains no tasks", path)
	}
	if err := proto.ValidateOrdering(doc.Tasks); err != nil {
		return Document{}, fmt.Errorf("plan file %s: %w", path, err)
	}
	return doc, nil
}

// Save writes a plan document for later editing or re-running.
func Save(path string, doc Document) error {
	if err := proto.ValidateOrdering(doc.Tasks); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}
