// cmd_show.go - Checkpoint-Info und Export
// Hauptfunktionen: ShowHandler, showInfo, ExportHandler
package cmd

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/format"
	"github.com/7blacky7/codetrans/fs/ckpt"
	"github.com/7blacky7/codetrans/model"
)

// ShowHandler - Zeigt Informationen zu einem Checkpoint an
func ShowHandler(cmd *cobra.Command, args []string) error {
	c, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}

	return showInfo(c, cmd.OutOrStdout())
}

// showInfo - Gibt Modell, Training und Vokabular tabellarisch aus
func showInfo(c *checkpoint.Checkpoint, w io.Writer) error {
	tableRender := func(header string, rows func() [][]string) {
		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(rows())
		table.Render()
		fmt.Fprintln(w)
	}

	formatFloat := func(f float64) string {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return "-"
		}
		return strconv.FormatFloat(f, 'g', 6, 64)
	}

	tableRender("Model", func() (rows [][]string) {
		rows = append(rows, []string{"", "parameters", format.HumanNumber(uint64(c.Params.Count()))})
		rows = append(rows, []string{"", "vocabulary", strconv.Itoa(c.Config.VocabSize)})
		rows = append(rows, []string{"", "embedding dim", strconv.Itoa(c.Config.EmbeddingDim)})
		rows = append(rows, []string{"", "hidden dim", strconv.Itoa(c.Config.HiddenDim)})
		rows = append(rows, []string{"", "max length", strconv.Itoa(c.MaxLength)})
		rows = append(rows, []string{"", "decoding", cmp.Or(string(c.Decode.Strategy), string(model.Greedy))})
		rows = append(rows, []string{"", "digest", c.Digest})
		return
	})

	tableRender("Training", func() (rows [][]string) {
		rows = append(rows, []string{"", "run", c.Progress.RunID})
		rows = append(rows, []string{"", "epoch", strconv.Itoa(c.Progress.Epoch)})
		rows = append(rows, []string{"", "step", strconv.Itoa(c.Progress.Step)})
		rows = append(rows, []string{"", "best loss", formatFloat(c.Progress.BestLoss)})
		rows = append(rows, []string{"", "learning rate", formatFloat(c.Progress.LR)})
		rows = append(rows, []string{"", "completed", strconv.FormatBool(c.Progress.Completed)})
		rows = append(rows, []string{"", "optimizer state", strconv.FormatBool(c.Optimizer != nil)})
		return
	})

	pairs := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		pairs[i] = p.String()
	}
	tableRender("Languages", func() (rows [][]string) {
		rows = append(rows, []string{"", "pairs", strings.Join(pairs, ", ")})
		return
	})

	return nil
}

// ExportHandler - Schreibt eine Serving-Kopie ohne Optimizer-Zustand
func ExportHandler(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	kind, err := ckpt.ParseKind(typ)
	if err != nil {
		return err
	}

	c, err := checkpoint.Load(args[0])
	if err != nil {
		return err
	}

	digest, err := checkpoint.Export(args[1], c, kind)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %s as %s (%s)\n", args[1], kind, digest)
	return nil
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show CHECKPOINT",
		Short: "Show information about a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}
}

// newExportCmd - Erstellt den export Command
func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export CHECKPOINT OUTPUT",
		Short: "Write a checkpoint for serving in a smaller tensor type",
		Args:  cobra.ExactArgs(2),
		RunE:  ExportHandler,
	}

	exportCmd.Flags().String("type", "f16", "Tensor type: f64, f32, f16 or bf16")
	return exportCmd
}
