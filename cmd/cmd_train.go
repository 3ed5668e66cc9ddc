// cmd_train.go - Training mit Fortschrittsanzeige
// Hauptfunktionen: TrainHandler, newTrainCmd
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/7blacky7/codetrans/checkpoint"
	"github.com/7blacky7/codetrans/envconfig"
	"github.com/7blacky7/codetrans/format"
	"github.com/7blacky7/codetrans/store"
	"github.com/7blacky7/codetrans/train"
)

// progressWriter zeigt Schritte auf einem Terminal in einer Zeile an
type progressWriter struct {
	w      io.Writer
	tty    bool
	epochs int
	last   time.Time
}

func newProgressWriter(w io.Writer, epochs int) *progressWriter {
	p := &progressWriter{w: w, epochs: epochs}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *progressWriter) step(pr checkpoint.Progress, loss float64) {
	if !p.tty || time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()
	fmt.Fprintf(p.w, "\r\033[Kepoch %d/%d  step %s  loss %.4f  lr %.2e", pr.Epoch+1, p.epochs, format.HumanNumber(uint64(pr.Step)), loss, pr.LR)
}

func (p *progressWriter) epoch(r train.EpochResult) {
	if p.tty {
		fmt.Fprint(p.w, "\r\033[K")
	}
	mark := ""
	if r.Improved {
		mark = " *"
	}
	fmt.Fprintf(p.w, "epoch %d/%d  train %.4f  val %.4f%s  %s\n", r.Epoch+1, p.epochs, r.TrainLoss, r.ValLoss, mark, format.HumanDuration(r.Duration))
}

// resumePath loest einen Dateinamen ohne Verzeichnis relativ zu dir auf
func resumePath(dir, path string) string {
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		return filepath.Join(dir, path)
	}
	return path
}

// TrainHandler - Trainiert ein Modell aus CONFIG und DATASET-Dateien
func TrainHandler(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := train.LoadConfig(args[0])
	if err != nil {
		return err
	}

	var samples []train.Sample
	for _, path := range args[1:] {
		s, err := train.LoadDataset(path)
		if err != nil {
			return err
		}
		samples = append(samples, s...)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = envconfig.Models()
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if !envconfig.NoHistory() {
		st, err = store.Open(envconfig.DB())
		if err != nil {
			slog.Warn("history database unavailable, run is not recorded", "path", envconfig.DB(), "error", err)
		} else {
			defer st.Close()
		}
	}

	var feedbackIDs []string
	if useFeedback, _ := cmd.Flags().GetBool("feedback"); useFeedback {
		if st == nil {
			return errors.New("--feedback needs the history database")
		}
		fb, err := st.Feedback(ctx, true)
		if err != nil {
			return err
		}
		for _, f := range fb {
			feedbackIDs = append(feedbackIDs, f.ID)
		}
		samples = append(samples, train.FromFeedback(fb)...)
		slog.Info("merged feedback", "corrections", len(fb))
	}

	if len(samples) == 0 {
		return errors.New("no training samples, pass a dataset or use --feedback")
	}

	progress := newProgressWriter(cmd.ErrOrStderr(), cfg.NumEpochs)
	opts := train.Options{
		Dir:     output,
		OnStep:  progress.step,
		OnEpoch: progress.epoch,
	}
	if st != nil {
		opts.Sink = st
	}

	if resume, _ := cmd.Flags().GetString("resume"); resume != "" {
		c, err := checkpoint.Load(resumePath(output, resume))
		if err != nil {
			return err
		}
		opts.Resume = c
	}

	t, err := train.New(cfg, samples, opts)
	if err != nil {
		return err
	}

	res, err := t.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\ntraining interrupted at step %d, continue with --resume %s\n", res.Progress.Step, res.Checkpoints[checkpoint.LastFile])
		return nil
	} else if err != nil {
		return err
	}

	if len(feedbackIDs) > 0 {
		if err := st.MarkFeedbackUsed(context.WithoutCancel(ctx), feedbackIDs); err != nil {
			slog.Warn("failed to mark feedback as used", "error", err)
		}
	}

	best := "-"
	if !math.IsInf(res.Progress.BestLoss, 0) {
		best = strconv.FormatFloat(res.Progress.BestLoss, 'f', 4, 64)
	}

	trainN, valN := t.Sizes()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "status:     %s\n", res.Status)
	fmt.Fprintf(w, "run:        %s\n", res.Progress.RunID)
	fmt.Fprintf(w, "examples:   %d train, %d validation\n", trainN, valN)
	fmt.Fprintf(w, "steps:      %d\n", res.Progress.Step)
	fmt.Fprintf(w, "best loss:  %s\n", best)

	names := make([]string, 0, len(res.Checkpoints))
	for name := range res.Checkpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "checkpoint: %s\n", res.Checkpoints[name])
	}
	return nil
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train CONFIG [DATASET...]",
		Short: "Train a translation model",
		Long: `Train a translation model from JSON or JSONL datasets.

CONFIG is a YAML, JSON or TOML file with at least batch_size, num_epochs
and learning_rate. Unknown keys are rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: TrainHandler,
	}

	trainCmd.Flags().StringP("output", "o", "", "Checkpoint directory (default $CODETRANS_MODELS)")
	trainCmd.Flags().String("resume", "", "Resume from a checkpoint (default last.ckpt in the output directory)")
	trainCmd.Flags().Lookup("resume").NoOptDefVal = checkpoint.LastFile
	trainCmd.Flags().Bool("feedback", false, "Add unused corrections from the feedback database")

	return trainCmd
}
