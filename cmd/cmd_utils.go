// cmd_utils.go - Gemeinsame Hilfsfunktionen
// Hauptfunktionen: checkServerHeartbeat, readSource, renderTable, setupLogging
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/codetrans/api"
	"github.com/7blacky7/codetrans/envconfig"
	"github.com/7blacky7/codetrans/logutil"
	"github.com/7blacky7/codetrans/train"
)

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("codetrans server not responding, start it with 'codetrans serve' - %w", err)
		}
		return err
	}
	return nil
}

// setupLogging - Logger fuer lokal rechnende Commands
func setupLogging() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
}

// readSource - Liest eine Datei oder stdin ("-" oder kein Argument)
// BOM wird entfernt, UTF-16 nach UTF-8 dekodiert.
func readSource(cmd *cobra.Command, args []string) (text, path string, err error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		path = args[0]
		f, err := os.Open(path)
		if err != nil {
			return "", "", err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(train.NewReader(r))
	if err != nil {
		return "", "", err
	}
	return string(data), path, nil
}

// renderTable - Tabelle im Stil von "list"
func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
