package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cod-reconciliation-service/internal/fixtures"
	"cod-reconciliation-service/pkg/errors"
)

var fixturesCmd = &cobra.Command{
	Use:    "generate-fixtures",
	Short:  "Write sample orders.csv and settlements.csv files",
	Hidden: true,
	RunE:   runGenerateFixtures,
}

func init() {
	rootCmd.AddCommand(fixturesCmd)

	fixturesCmd.Flags().Int("count", 40, "number of orders to generate")
	fixturesCmd.Flags().Int64("seed", 1, "random seed")
	fixturesCmd.Flags().String("out", ".", "output directory")
}

func runGenerateFixtures(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")
	out, _ := cmd.Flags().GetString("out")

	if count <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "count", count, fmt.Errorf("count must be positive"))
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return errors.FileError(errors.CodeFilePermission, out, err)
	}

	ds := fixtures.NewGenerator(seed).Generate(count)

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"orders.csv", func(w io.Writer) error { return fixtures.WriteOrdersCSV(w, ds.Orders()) }},
		{"settlements.csv", func(w io.Writer) error { return fixtures.WriteSettlementsCSV(w, ds.Settlements()) }},
	}
	for _, f := range files {
		path := filepath.Join(out, f.name)
		if err := writeFile(path, f.write); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}
