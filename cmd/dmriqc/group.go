package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmriqc/pkg/config"
	"dmriqc/pkg/group"
)

var (
	groupList     string
	groupGrouping string
	groupOutput   string
)

// groupCmd aggregates per-subject QC records into a study database.
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Aggregate per-subject QC records into a group database",
	Long: `Reads the QC record of every subject named in a list file, stores the
records and their scalar metrics in an SQLite database and writes summary
statistics (mean, standard deviation, quartiles) for each metric observed
in at least two subjects.

Example:
  dmriqc group --list subjects.txt -o study_qc --grouping site.txt`,
	RunE: runGroup,
}

func init() {
	groupCmd.Flags().StringVar(&groupList, "list", "", "Text file listing one subject QC directory per line")
	groupCmd.Flags().StringVar(&groupGrouping, "grouping", "", "Grouping-variable file: header line plus one label per subject (optional)")
	groupCmd.Flags().StringVarP(&groupOutput, "output", "o", "", "Directory for the group database and summary")

	for _, name := range []string{"list", "output"} {
		if err := groupCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func runGroup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dirs, err := group.LoadList(groupList)
	if err != nil {
		return err
	}
	logger.Info("Loading subject records", zap.Int("subjects", len(dirs)))

	subjects, err := group.LoadSubjects(dirs, cfg.Extraction.OutputName)
	if err != nil {
		return err
	}

	if groupGrouping != "" {
		name, labels, err := group.LoadGrouping(groupGrouping, len(subjects))
		if err != nil {
			return err
		}
		group.ApplyGrouping(subjects, labels)
		logger.Info("Applied grouping variable", zap.String("variable", name))
	}

	if err := os.MkdirAll(groupOutput, 0755); err != nil {
		return fmt.Errorf("create output directory %s: %w", groupOutput, err)
	}

	dbPath := filepath.Join(groupOutput, cfg.Group.DatabaseName)
	db, err := group.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := group.Store(db, subjects); err != nil {
		return err
	}
	logger.Info("Stored subject records", zap.String("database", dbPath))

	summaries := group.Summarize(subjects)
	summaryPath := filepath.Join(groupOutput, cfg.Group.SummaryName)
	if err := group.WriteSummary(summaryPath, subjects, summaries); err != nil {
		return err
	}
	logger.Info("Wrote group summary",
		zap.String("path", summaryPath),
		zap.Int("metrics", len(summaries)))
	return nil
}
