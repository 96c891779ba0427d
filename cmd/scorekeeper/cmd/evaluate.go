package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <rules-file>",
	Short: "Evaluate rules against patient inputs",
	Long: `Evaluate loads rules (rule text, or a parsed .json document) and scores
them against inputs read from a YAML or JSON file (--inputs) and/or
individual --set name=value pairs. Later --set values win.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("inputs", "i", "", "YAML or JSON file with patient inputs")
	evaluateCmd.Flags().StringArray("set", nil, "input value as name=value (repeatable)")
}

// loadInputs merges the inputs file with --set pairs. YAML keeps integers
// as int and decimals as float64, matching literal coercion.
func loadInputs(path string, pairs []string) (types.Inputs, error) {
	inputs := types.Inputs{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read inputs: %w", err)
		}
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("failed to decode inputs %s: %w", path, err)
		}
	}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: want name=value", p)
		}
		inputs[name] = rules.CoerceLiteral(value)
	}
	return inputs, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	engine, _, err := newEngine(cfg, logger, nil)
	if err != nil {
		return err
	}

	data, err := readInput(cmd, args[0])
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}

	var doc *types.RuleDocument
	if strings.EqualFold(filepath.Ext(args[0]), ".json") {
		doc = types.NewRuleDocument()
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
	} else if doc, err = engine.Parse(cmd.Context(), string(data)); err != nil {
		return err
	}

	inputsPath, _ := cmd.Flags().GetString("inputs")
	pairs, _ := cmd.Flags().GetStringArray("set")
	inputs, err := loadInputs(inputsPath, pairs)
	if err != nil {
		return err
	}

	res, err := engine.Evaluate(cmd.Context(), doc, inputs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}
