package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"legal-researcher/internal/models"
)

// loadCase reads a case file. A .json file holds a models.CaseInput; any
// other file is the case text itself. Flags fill fields the file leaves
// empty, and the file name is the fallback case ID.
func loadCase(path, id, jurisdiction string, hints []string) (models.CaseInput, error) {
	var in models.CaseInput
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return in, fmt.Errorf("%w: case file %s does not exist", models.ErrInvalidCase, path)
		}
		return in, fmt.Errorf("failed to read case file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &in); err != nil {
			return in, fmt.Errorf("%w: %s is not a case JSON object: %v", models.ErrInvalidCase, path, err)
		}
	} else {
		in.Text = string(data)
	}

	if id != "" {
		in.CaseID = id
	}
	if in.CaseID == "" {
		in.CaseID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if jurisdiction != "" {
		in.Jurisdiction = jurisdiction
	}
	in.Hints = append(in.Hints, hints...)
	return in, in.Validate()
}

// loadCaseDir loads every .txt, .md and .json file directly inside dir, in
// name order.
func loadCaseDir(dir, jurisdiction string) ([]models.CaseInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read case directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no case files in %s", models.ErrInvalidCase, dir)
	}

	cases := make([]models.CaseInput, 0, len(names))
	for _, name := range names {
		in, err := loadCase(filepath.Join(dir, name), "", jurisdiction, nil)
		if err != nil {
			return nil, err
		}
		cases = append(cases, in)
	}
	return cases, nil
}
