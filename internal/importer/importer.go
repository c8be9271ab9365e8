// Package importer bulk-loads lore entries from a YAML file. Entries are
// created in file order, so parents must precede their children.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"loreweave/internal/schema"
	"loreweave/internal/store"
)

// Store is the slice of the entry store the importer needs.
type Store interface {
	CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error)
}

type Result struct {
	Created  int
	Skipped  int
	Warnings []string
	Errors   []error
}

type entryDoc struct {
	Type       string         `yaml:"type"`
	Name       string         `yaml:"name"`
	Category   string         `yaml:"category"`
	Status     string         `yaml:"status"`
	Summary    string         `yaml:"summary"`
	Content    string         `yaml:"content"`
	ParentSlug string         `yaml:"parent_slug"`
	Metadata   map[string]any `yaml:"metadata"`
	References []referenceDoc `yaml:"references"`
}

type referenceDoc struct {
	TargetSlug   string `yaml:"target_slug"`
	TargetType   string `yaml:"target_type"`
	Relationship string `yaml:"relationship"`
}

type importFile struct {
	Entries []entryDoc `yaml:"entries"`
}

// Run imports every entry in the file. Invalid entries are skipped and
// reported; a skip never aborts the rest of the import.
func Run(ctx context.Context, db Store, registry *schema.Registry, path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}

	var file importFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("import file has no entries")
	}

	result := &Result{}
	for i, doc := range file.Entries {
		if doc.Name == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("entry %d: name is required", i+1))
			continue
		}
		if violations := registry.ValidateTaxonomy(doc.Type, doc.Category, doc.Status); len(violations) > 0 {
			result.Skipped++
			for _, violation := range violations {
				result.Errors = append(result.Errors, fmt.Errorf("entry %q: %s", doc.Name, violation))
			}
			continue
		}

		raw, err := db.CreateEntry(ctx, creationInput(doc))
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("creating %q: %w", doc.Name, err))
			continue
		}
		result.Created++

		var response store.CreateEntryResponse
		if err := json.Unmarshal(raw, &response); err == nil {
			result.Warnings = append(result.Warnings, response.Warnings...)
		}
	}

	return result, nil
}

func creationInput(doc entryDoc) store.CreateEntryInput {
	references := make([]store.Reference, 0, len(doc.References))
	for _, ref := range doc.References {
		relationship := ref.Relationship
		if relationship == "" {
			relationship = "related_to"
		}
		references = append(references, store.Reference{
			TargetSlug:   ref.TargetSlug,
			TargetType:   ref.TargetType,
			Relationship: relationship,
		})
	}

	return store.CreateEntryInput{
		Type:       doc.Type,
		Name:       doc.Name,
		Category:   doc.Category,
		Status:     doc.Status,
		Summary:    doc.Summary,
		Content:    doc.Content,
		ParentSlug: doc.ParentSlug,
		Metadata:   doc.Metadata,
		References: references,
	}
}
