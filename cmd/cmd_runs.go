// cmd_runs.go - Trainingshistorie des Servers
// Hauptfunktionen: RunsHandler
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/format"
)

func formatLoss(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}

// RunsHandler - Listet Trainingslaeufe oder zeigt die Epochen eines Laufs
func RunsHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		run, err := client.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s  %s  %s  best %s\n", run.ID, run.Status, run.Pairs, formatLoss(run.BestLoss))
		if run.Error != "" {
			fmt.Fprintf(w, "error: %s\n", run.Error)
		}
		fmt.Fprintln(w)

		var data [][]string
		for _, e := range run.Epochs {
			mark := ""
			if e.Improved {
				mark = "*"
			}
			data = append(data, []string{
				strconv.Itoa(e.Epoch + 1),
				strconv.Itoa(e.Step),
				strconv.FormatFloat(e.TrainLoss, 'f', 4, 64),
				strconv.FormatFloat(e.ValLoss, 'f', 4, 64) + mark,
				strconv.FormatFloat(e.LR, 'e', 2, 64),
				format.HumanDuration(e.Duration),
			})
		}
		renderTable(w, []string{"EPOCH", "STEP", "TRAIN", "VAL", "LR", "DURATION"}, data)
		return nil
	}

	runs, err := client.Runs(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs.Runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = format.HumanDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		data = append(data, []string{
			r.ID,
			r.Status,
			r.Pairs,
			strconv.Itoa(r.Examples),
			formatLoss(r.BestLoss),
			format.HumanTime(r.StartedAt, "Never"),
			finished,
		})
	}
	renderTable(cmd.OutOrStdout(), []string{"ID", "STATUS", "PAIRS", "EXAMPLES", "BEST LOSS", "STARTED", "DURATION"}, data)
	return nil
}

// newRunsCmd - Erstellt den runs Command
func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "runs [RUN]",
		Aliases: []string{"history"},
		Short:   "List training runs",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    RunsHandler,
	}
}
