// cmd_translate.go - Uebersetzen ueber den Server oder lokal mit Checkpoint
// Hauptfunktionen: TranslateHandler, FeedbackHandler, ReloadHandler
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/languages"
	"github.com/7blacky7/codetrans/model"
	"github.com/7blacky7/codetrans/translator"
)

// addDecodeFlags - Flags fuer die Decoding-Strategie
func addDecodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("strategy", "", "Decoding strategy: greedy, topk or beam")
	cmd.Flags().Int("max-length", 0, "Maximum number of output tokens")
	cmd.Flags().Int("top-k", 0, "Candidates for topk sampling")
	cmd.Flags().Int("beam-size", 0, "Beam width for beam search")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().Uint64("seed", 0, "Sampling seed")
}

func decodeFlags(cmd *cobra.Command) api.Options {
	var o api.Options
	o.Strategy, _ = cmd.Flags().GetString("strategy")
	o.MaxLength, _ = cmd.Flags().GetInt("max-length")
	o.TopK, _ = cmd.Flags().GetInt("top-k")
	o.BeamSize, _ = cmd.Flags().GetInt("beam-size")
	o.Temperature, _ = cmd.Flags().GetFloat64("temperature")
	o.Seed, _ = cmd.Flags().GetUint64("seed")
	return o
}

// sourceLanguage - --from oder aus der Dateiendung
func sourceLanguage(cmd *cobra.Command, path string) (string, error) {
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		return from, nil
	}
	if path == "" {
		return "", errors.New("--from is required when reading from stdin")
	}
	l, err := languages.FromPath(path)
	if err != nil {
		return "", fmt.Errorf("cannot detect language of %s, use --from: %w", path, err)
	}
	return l.Name, nil
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
}

// TranslateHandler - Uebersetzt eine Datei oder stdin
func TranslateHandler(cmd *cobra.Command, args []string) error {
	source, path, err := readSource(cmd, args)
	if err != nil {
		return err
	}

	from, err := sourceLanguage(cmd, path)
	if err != nil {
		return err
	}
	to, _ := cmd.Flags().GetString("to")
	opts := decodeFlags(cmd)

	if ckpt, _ := cmd.Flags().GetString("checkpoint"); ckpt != "" {
		setupLogging()

		tr := translator.New(model.DecodeOptions{})
		if _, err := tr.Load(ckpt); err != nil {
			return err
		}

		res, err := tr.Translate(cmd.Context(), translator.Request{
			Source:     source,
			SourceLang: from,
			TargetLang: to,
			Options: model.DecodeOptions{
				Strategy:    model.Strategy(opts.Strategy),
				MaxLength:   opts.MaxLength,
				TopK:        opts.TopK,
				BeamSize:    opts.BeamSize,
				Temperature: opts.Temperature,
				Seed:        opts.Seed,
			},
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		printWarnings(cmd, res.Warnings)
		return nil
	}

	if err := checkServerHeartbeat(cmd, args); err != nil {
		return err
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Translate(cmd.Context(), &api.TranslateRequest{
		Source:     source,
		SourceLang: from,
		TargetLang: to,
		Options:    &opts,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
	printWarnings(cmd, resp.Warnings)
	return nil
}

// FeedbackHandler - Sendet eine Korrektur an den Server
func FeedbackHandler(cmd *cobra.Command, args []string) error {
	source, path, err := readSource(cmd, args[:1])
	if err != nil {
		return err
	}
	correction, _, err := readSource(cmd, args[1:])
	if err != nil {
		return err
	}

	from, err := sourceLanguage(cmd, path)
	if err != nil {
		return err
	}
	to, _ := cmd.Flags().GetString("to")
	rating, _ := cmd.Flags().GetInt("rating")

	var translation string
	if p, _ := cmd.Flags().GetString("translation"); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		translation = string(data)
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Feedback(cmd.Context(), &api.FeedbackRequest{
		SourceLang:  from,
		TargetLang:  to,
		Source:      source,
		Translation: translation,
		Correction:  correction,
		Rating:      rating,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "feedback %s recorded\n", resp.ID)
	return nil
}

// ReloadHandler - Laedt im laufenden Server einen Checkpoint neu
func ReloadHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	var req api.ReloadRequest
	if len(args) > 0 {
		req.Path = args[0]
	}

	resp, err := client.Reload(cmd.Context(), &req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %s (version %d, step %d)\n", resp.Path, resp.Version, resp.Step)
	return nil
}

// newTranslateCmd - Erstellt den translate Command
func newTranslateCmd() *cobra.Command {
	translateCmd := &cobra.Command{
		Use:   "translate [FILE]",
		Short: "Translate source code",
		Long: `Translate a file or stdin. Without --checkpoint the running server is used.
The source language is detected from the file extension unless --from is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: TranslateHandler,
	}

	translateCmd.Flags().String("from", "", "Source language")
	translateCmd.Flags().String("to", "", "Target language")
	translateCmd.Flags().String("checkpoint", "", "Translate locally with this checkpoint")
	translateCmd.MarkFlagRequired("to") //nolint:errcheck
	addDecodeFlags(translateCmd)

	return translateCmd
}

// newFeedbackCmd - Erstellt den feedback Command
func newFeedbackCmd() *cobra.Command {
	feedbackCmd := &cobra.Command{
		Use:     "feedback SOURCE CORRECTION",
		Short:   "Submit a corrected translation for later training",
		Args:    cobra.ExactArgs(2),
		PreRunE: checkServerHeartbeat,
		RunE:    FeedbackHandler,
	}

	feedbackCmd.Flags().String("from", "", "Source language")
	feedbackCmd.Flags().String("to", "", "Target language")
	feedbackCmd.Flags().String("translation", "", "File with the rejected model output")
	feedbackCmd.Flags().Int("rating", 0, "Rating of the model output (1-5)")
	feedbackCmd.MarkFlagRequired("to") //nolint:errcheck

	return feedbackCmd
}

// newReloadCmd - Erstellt den reload Command
func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "reload [CHECKPOINT]",
		Short:   "Load a checkpoint into the running server",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ReloadHandler,
	}
}
