// cmd_evaluate.go - Validierung und Bewertung ohne Server
// Hauptfunktionen: ValidateHandler, EvaluateHandler
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/metrics"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/train"
	"github.com/7blacky7/codetrans/translator"
	"github.com/7blacky7/codetrans/validate"
)

// ValidateHandler - Prueft Code auf strukturelle Gueltigkeit
func ValidateHandler(cmd *cobra.Command, args []string) error {
	source, path, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("lang")
	var lang languages.Language
	if name != "" {
		lang, err = languages.Lookup(name)
	} else if path != "" {
		lang, err = languages.FromPath(path)
	} else {
		return fmt.Errorf("--lang is required when reading from stdin")
	}
	if err != nil {
		return err
	}

	v := validate.Validate(source, lang)
	printWarnings(cmd, v.Warnings)
	if !v.Valid {
		return fmt.Errorf("invalid %s: %s", lang.Name, v.Reason)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "valid %s (confidence %.2f)\n", lang.Name, v.Confidence)
	return nil
}

// EvaluateHandler - Uebersetzt einen Testdatensatz und berechnet die Metriken
func EvaluateHandler(cmd *cobra.Command, args []string) error {
	setupLogging()

	tr := translator.New(model.DecodeOptions{})
	m, err := tr.Load(args[0])
	if err != nil {
		return err
	}

	raw, err := train.LoadDataset(args[1])
	if err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	samples, err := train.Prepare(raw, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("dataset %s has no usable samples", args[1])
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	scored := make([]metrics.Sample, len(samples))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers)
	for i, s := range samples {
		g.Go(func() error {
			res, err := tr.Translate(ctx, translator.Request{
				Source:     s.Source,
				SourceLang: s.Pair.Source,
				TargetLang: s.Pair.Target,
			})
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			scored[i] = metrics.Sample{Reference: s.Target, Candidate: res.Text, Language: s.Pair.Target}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report, err := metrics.EvaluateAll(cmd.Context(), scored, workers)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	var data [][]string
	for pair := report.Mean.Ordered().Oldest(); pair != nil; pair = pair.Next() {
		data = append(data, []string{pair.Key, strconv.FormatFloat(pair.Value, 'f', 4, 64)})
	}
	data = append(data,
		[]string{"samples", strconv.Itoa(report.Count)},
		[]string{"valid", strconv.Itoa(report.Valid)},
		[]string{"checkpoint", m.Path},
	)
	renderTable(cmd.OutOrStdout(), []string{"METRIC", "VALUE"}, data)
	return nil
}

// newValidateCmd - Erstellt den validate Command
func newValidateCmd() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check code for balanced brackets, strings and indentation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ValidateHandler,
	}

	validateCmd.Flags().String("lang", "", "Language (default: detected from the file extension)")
	return validateCmd
}

// newEvaluateCmd - Erstellt den evaluate Command
func newEvaluateCmd() *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate CHECKPOINT DATASET",
		Short: "Translate a test set and report BLEU, structure and syntax scores",
		Args:  cobra.ExactArgs(2),
		RunE:  EvaluateHandler,
	}

	evaluateCmd.Flags().String("from", "", "Source language for samples without source_lang")
	evaluateCmd.Flags().String("to", "", "Target language for samples without target_lang")
	evaluateCmd.Flags().Int("workers", 0, "Parallel translations (default GOMAXPROCS)")
	evaluateCmd.Flags().Bool("json", false, "Print the report as JSON")

	return evaluateCmd
}
