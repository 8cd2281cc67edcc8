package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/answer"
	qaerrors "github.com/codeqa/codeqa/internal/errors"
	"github.com/codeqa/codeqa/internal/llm"
	"github.com/codeqa/codeqa/internal/search"
	"github.com/codeqa/codeqa/internal/telemetry"
)

func newAskCmd() *cobra.Command {
	var (
		topK        int
		outputFile  string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed codebase",
		Long: `Ask a question about the indexed codebase.

The most relevant chunks are retrieved from the index and sent to the
completion provider as context for a grounded, cited answer.

Examples:
  codeqa ask "how are user sessions stored?"
  codeqa ask "where is retry handled?" -k 10
  codeqa ask --output=answers.md "what does the scheduler do?"
  codeqa ask --interactive`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if !interactive && question == "" {
				return qaerrors.InvalidArg("provide a question, or use --interactive")
			}
			return runAsk(cmd.Context(), cmd, question, topK, outputFile, interactive)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of context chunks to retrieve (default from config)")
	cmd.Flags().StringVar(&outputFile, "output", "", "Write the answer as Markdown to a file (default codeqa_<dir>.md)")
	cmd.Flags().Lookup("output").NoOptDefVal = "auto"
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start an interactive question loop (exit with 'q')")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, topK int, outputFile string, interactive bool) error {
	proj, err := loadProject(".")
	if err != nil {
		return err
	}

	snap, embedder, err := proj.openIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = snap.Close() }()
	defer func() { _ = embedder.Close() }()

	completer, err := llm.NewCompleter(ctx, proj.cfg.Completion)
	if err != nil {
		return err
	}
	defer func() { _ = completer.Close() }()

	loop, err := answer.NewLoop(snap, embedder, completer, proj.cfg.Completion,
		telemetry.NewRecorder(snap.Meta))
	if err != nil {
		return err
	}

	if topK <= 0 {
		topK = proj.cfg.Retrieval.TopK
	}
	if topK <= 0 {
		topK = search.DefaultLimit
	}

	if interactive {
		return runAskInteractive(ctx, cmd, loop, topK)
	}

	res, err := loop.Answer(ctx, question, topK)
	if err != nil {
		return err
	}

	if outputFile != "" {
		path := resolveOutputPath(outputFile, proj.root)
		if err := writeAnswerMarkdown(path, question, res); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Answer written to %s\n", path)
		return nil
	}

	printAnswer(cmd.OutOrStdout(), res)
	return nil
}

// runAskInteractive reads questions from stdin until EOF or a quit
// command. Per-question failures are reported and the loop continues.
func runAskInteractive(ctx context.Context, cmd *cobra.Command, loop *answer.Loop, topK int) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Interactive mode. Type a question, or 'q' to quit.")

	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		_, _ = fmt.Fprint(out, "\ncodeqa> ")
		if !sc.Scan() {
			_, _ = fmt.Fprintln(out)
			return sc.Err()
		}

		question := strings.TrimSpace(sc.Text())
		switch question {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		}

		res, err := loop.Answer(ctx, question, topK)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_, _ = fmt.Fprint(cmd.ErrOrStderr(), qaerrors.FormatForCLI(err))
			continue
		}
		printAnswer(out, res)
	}
}

func printAnswer(w io.Writer, res *answer.Result) {
	_, _ = fmt.Fprintln(w, strings.TrimRight(res.Text, "\n"))
	if len(res.Context) > 0 {
		_, _ = fmt.Fprintln(w, "\nSources:")
		for _, c := range res.Context {
			_, _ = fmt.Fprintf(w, "  %s (lines %d-%d)\n", c.Path, c.StartLine, c.EndLine)
		}
	}
	_, _ = fmt.Fprintf(w, "\n%s, %s\n", res.Model, res.Duration.Round(time.Millisecond))
}

// resolveOutputPath maps the bare --output flag to the default file
// name derived from the project directory.
func resolveOutputPath(outputFile, root string) string {
	if outputFile != "auto" {
		return outputFile
	}
	return fmt.Sprintf("codeqa_%s.md", filepath.Base(root))
}

func writeAnswerMarkdown(path, question string, res *answer.Result) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", question))
	sb.WriteString(strings.TrimRight(res.Text, "\n"))
	sb.WriteString("\n")
	if len(res.Context) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for _, c := range res.Context {
			sb.WriteString(fmt.Sprintf("- `%s` (lines %d-%d)\n", c.Path, c.StartLine, c.EndLine))
		}
	}
	sb.WriteString(fmt.Sprintf("\n_Generated by %s on %s._\n",
		res.Model, time.Now().Format("2006-01-02 15:04")))

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return qaerrors.IO("write answer file", err)
	}
	return nil
}
