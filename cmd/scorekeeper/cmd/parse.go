package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse rule text into its JSON document",
	Long: `Parse reads rule text from a file (or stdin when no file or "-" is given)
and prints the parsed document as JSON. Text without structural keywords
is sent to the configured AI model.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().Bool("canonical", false, "print the canonical rule text instead of JSON")
}

// readInput reads the named file, or stdin for "" and "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(io.LimitReader(cmd.InOrStdin(), types.MaxRuleTextSize+1))
	}
	return os.ReadFile(name)
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	engine, _, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	text, err := readInput(cmd, name)
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}

	doc, err := engine.Parse(cmd.Context(), string(text))
	if err != nil {
		return err
	}

	if canonical, _ := cmd.Flags().GetBool("canonical"); canonical {
		_, err = fmt.Fprint(cmd.OutOrStdout(), rules.Format(doc))
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}
