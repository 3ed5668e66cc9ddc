// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/7blacky7/codetrans/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "codetrans",
		Short:         "Neural source code translator",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	trainCmd := newTrainCmd()
	translateCmd := newTranslateCmd()
	validateCmd := newValidateCmd()
	evaluateCmd := newEvaluateCmd()
	runsCmd := newRunsCmd()
	feedbackCmd := newFeedbackCmd()
	reloadCmd := newReloadCmd()
	showCmd := newShowCmd()
	exportCmd := newExportCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["CODETRANS_HOST"]}

	for _, cmd := range []*cobra.Command{
		serveCmd,
		trainCmd,
		translateCmd,
		runsCmd,
		feedbackCmd,
		reloadCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CODETRANS_DEBUG"],
				envVars["CODETRANS_HOST"],
				envVars["CODETRANS_MODELS"],
				envVars["CODETRANS_DB"],
				envVars["CODETRANS_NUM_PARALLEL"],
				envVars["CODETRANS_MAX_QUEUE"],
				envVars["CODETRANS_ORIGINS"],
				envVars["CODETRANS_LOAD_TIMEOUT"],
			})
		case trainCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["CODETRANS_DEBUG"],
				envVars["CODETRANS_MODELS"],
				envVars["CODETRANS_DB"],
				envVars["CODETRANS_NOHISTORY"],
			})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		trainCmd,
		translateCmd,
		validateCmd,
		evaluateCmd,
		runsCmd,
		feedbackCmd,
		reloadCmd,
		showCmd,
		exportCmd,
	)

	return rootCmd
}
