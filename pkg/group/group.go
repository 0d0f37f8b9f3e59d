// Package group merges per-subject QC records into a study-wise database
// and per-metric summary statistics, the input for group-level reporting.
package group

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Subject is one parsed per-subject QC record.
type Subject struct {
	// Dir is the QC directory the record was read from.
	Dir string

	// Group is the optional grouping-variable label.
	Group string

	// Fields holds the flat data_*/qc_* record entries.
	Fields map[string]interface{}
}

// LoadList reads a text file listing one subject QC directory per line.
// Blank lines and lines starting with # are ignored.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read subject list %s: %w", path, err)
	}
	defer f.Close()

	var dirs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dirs = append(dirs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read subject list %s: %w", path, err)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("subject list %s names no QC directories", path)
	}
	return dirs, nil
}

// LoadSubjects reads the QC record of every listed directory.
func LoadSubjects(dirs []string, recordName string) ([]Subject, error) {
	subjects := make([]Subject, 0, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(dir, recordName)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read QC record %s: %w", path, err)
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("parse QC record %s: %w", path, err)
		}
		subjects = append(subjects, Subject{Dir: dir, Fields: fields})
	}
	return subjects, nil
}

// LoadGrouping reads a grouping-variable file: a header line naming the
// variable followed by one label per subject, in subject-list order.
func LoadGrouping(path string, nSubjects int) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("read grouping file %s: %w", path, err)
	}
	defer f.Close()

	var name string
	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if name == "" {
			name = line
			continue
		}
		labels = append(labels, line)
	}
	if err := sc.Err(); err != nil {
		return "", nil, fmt.Errorf("read grouping file %s: %w", path, err)
	}
	if len(labels) != nSubjects {
		return "", nil, fmt.Errorf("grouping file %s has %d labels for %d subjects", path, len(labels), nSubjects)
	}
	return name, labels, nil
}

// ApplyGrouping attaches the labels to the subjects, in order.
func ApplyGrouping(subjects []Subject, labels []string) {
	for i := range subjects {
		subjects[i].Group = labels[i]
	}
}

// Summary describes the distribution of one scalar metric across the study.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// Summarize computes the distribution of every scalar qc_* metric present
// in at least two subjects.
func Summarize(subjects []Subject) map[string]Summary {
	byKey := make(map[string][]float64)
	for _, s := range subjects {
		for k, v := range s.Fields {
			if !strings.HasPrefix(k, "qc_") {
				continue
			}
			if f, ok := v.(float64); ok {
				byKey[k] = append(byKey[k], f)
			}
		}
	}

	summaries := make(map[string]Summary, len(byKey))
	for k, vals := range byKey {
		if len(vals) < 2 {
			continue
		}
		sort.Float64s(vals)
		summaries[k] = Summary{
			N:      len(vals),
			Mean:   stat.Mean(vals, nil),
			Std:    stat.StdDev(vals, nil),
			Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
			Q1:     stat.Quantile(0.25, stat.Empirical, vals, nil),
			Q3:     stat.Quantile(0.75, stat.Empirical, vals, nil),
		}
	}
	return summaries
}

// WriteSummary serializes the study database JSON: subject count, the
// summarized metric names and their distributions, with deterministic key
// ordering and fixed indentation.
func WriteSummary(path string, subjects []Subject, summaries map[string]Summary) error {
	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := map[string]interface{}{
		"num_subjects": len(subjects),
		"metrics":      keys,
		"qc_summary":   summaries,
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("serialize group summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write group summary %s: %w", path, err)
	}
	return nil
}
