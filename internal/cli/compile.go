package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/caseconf/internal/compiler"
	"github.com/emiliopalmerini/caseconf/internal/domain"
)

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file.csv>",
		Short: "Compile a configuration spreadsheet and print the result as JSON",
		Long: `Compile a configuration spreadsheet into display configurations and print
them as JSON. Nothing is stored.

The file needs the columns: User, Case No., Path, Collapse, Highlight, Top.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := compileFile(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), configs)
		},
	}
}

func compileFile(path string) ([]domain.DisplayConfiguration, error) {
	if !compiler.IsCSVFile(path) {
		return nil, domain.NewError(domain.KindInvalidCSV, "Only .csv files are accepted")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return compiler.CompileCSV(f)
}
