package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/citewatch/citewatch/internal/highlight"
	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/poll"
	"github.com/citewatch/citewatch/internal/task"
	"github.com/citewatch/citewatch/internal/usage"
)

var (
	citationsPath string
	checkOutJSON  string
	checkOutHTML  string
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <text-file>",
	Short: "Verify the citations in a text file",
	Long: `Check runs one verification task in-process and waits for it.

The text file holds the source text. Citations are supplied as a JSON
array of spans with character offsets into that text:

  [{"text": "Smith (2020)", "start": 0, "end": 12, "kind": "journal"}]

Example:
  citewatch check essay.txt --citations spans.json
  citewatch check essay.txt --citations spans.json --json report.json --html out.html`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&citationsPath, "citations", "", "JSON file with citation spans (required)")
	checkCmd.Flags().StringVar(&checkOutJSON, "json", "", "output JSON report path (optional)")
	checkCmd.Flags().StringVar(&checkOutHTML, "html", "", "output highlighted HTML path (optional)")
	_ = checkCmd.MarkFlagRequired("citations")
}

func runCheck(cmd *cobra.Command, args []string) error {
	textBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	sourceText := string(textBytes)

	spanBytes, err := os.ReadFile(citationsPath)
	if err != nil {
		return fmt.Errorf("read citations: %w", err)
	}
	var spans []model.CitationSpan
	if err := json.Unmarshal(spanBytes, &spans); err != nil {
		return fmt.Errorf("parse citations: %w", err)
	}

	cfg := loadConfig()
	tracker := usage.NewTracker()
	registry, err := buildRegistry(cfg, tracker)
	if err != nil {
		return err
	}
	defer registry.Close()

	id, err := registry.Submit(sourceText, spans)
	if errors.Is(err, task.ErrEmptyInput) {
		fmt.Println("No citations to verify.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	snap, err := waitForTask(registry, id, cfg.Poll)
	if err != nil {
		return err
	}

	if snap.Status == model.TaskTimedOut {
		fmt.Fprintf(os.Stderr, "Task timed out; %d of %d citations resolved.\n",
			len(snap.Outcomes), len(snap.Spans))
	}

	printVerdicts(snap)

	if verbose {
		stats := tracker.Stats()
		fmt.Fprintf(os.Stderr, "\nAPI calls: %d (%.0f%% ok, avg %.0fms)\n",
			stats.TotalCalls, stats.SuccessRate*100, stats.AvgDurationMS)
	}

	if checkOutJSON != "" {
		if err := writeJSONReport(checkOutJSON, snap); err != nil {
			return err
		}
	}
	if checkOutHTML != "" {
		if err := writeHTMLReport(checkOutHTML, snap); err != nil {
			return err
		}
	}
	return nil
}

// waitForTask polls the in-process registry until the task settles
func waitForTask(registry *task.Registry, id string, cfg model.PollConfig) (model.TaskSnapshot, error) {
	done := make(chan struct{})
	var final model.TaskSnapshot
	var failure error

	p := poll.NewPoller(registry.Snapshot, cfg)
	p.Start(id, poll.Callbacks{
		OnProgress: func(snap model.TaskSnapshot) {
			if verbose {
				fmt.Fprintf(os.Stderr, "\r%s", progressBar(snap.Progress))
			}
		},
		OnComplete: func(snap model.TaskSnapshot) {
			final = snap
			close(done)
		},
		OnFailure: func(_ string, err error) {
			failure = err
			close(done)
		},
	})
	defer p.Stop()

	<-done
	if verbose {
		fmt.Fprintln(os.Stderr)
	}
	if errors.Is(failure, poll.ErrTaskTimedOut) {
		// The task hit its deadline but its partial outcomes survive
		return registry.Snapshot(id)
	}
	if failure != nil {
		return model.TaskSnapshot{}, fmt.Errorf("verification failed: %w", failure)
	}
	return final, nil
}

func printVerdicts(snap model.TaskSnapshot) {
	for i, span := range snap.Spans {
		outcome, ok := snap.Outcomes[i+1]
		if !ok {
			fmt.Printf("%2d. [unresolved]   %s\n", i+1, span.Text)
			continue
		}
		fmt.Printf("%2d. [%-12s] %s\n", i+1, outcome.Status, span.Text)
		if verbose {
			fmt.Printf("      %s (confidence %.2f, %d sources)\n",
				outcome.Explanation, outcome.Confidence, len(outcome.Sources))
		}
	}
}

func writeJSONReport(path string, snap model.TaskSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written: %s\n", path)
	return nil
}

func writeHTMLReport(path string, snap model.TaskSnapshot) error {
	anns, err := highlight.Annotate(snap.SourceText, snap.Spans, snap.OrderedOutcomes())
	if err != nil {
		return fmt.Errorf("annotate: %w", err)
	}
	var renderer highlight.HTMLRenderer
	body, err := renderer.RenderText(snap.SourceText, anns)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	out := body + "\n" + renderer.RenderPanel(anns) + "\n"
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Highlighted output written: %s\n", path)
	return nil
}
