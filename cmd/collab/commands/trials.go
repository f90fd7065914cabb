package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/collab/internal/filter"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/printer"
	"github.com/dyluth/collab/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	trialsOutputFormat string
	trialsSince        string
	trialsUntil        string
	trialsEvent        string
	trialsModel        string
	trialsSummary      bool
)

var trialsCmd = &cobra.Command{
	Use:   "trials [TRIAL_LOG]",
	Short: "Inspect a coordinator trial log",
	Long: `Inspect the JSONL trial log written by the coordinator.

The log defaults to coordinator.trial_log from collab.yml.

List Mode (default):
  Displays one line per record matching the filters.

Summary Mode (--summary):
  Groups records into one line per model trial with the number of output
  updates, the time to solve, and the final output error.

Output Formats:
  default - Human-readable lines
  jsonl   - Line-delimited JSON, one record (or summary) per line

Filters:
  --since  - Show records after this time (duration or RFC3339)
  --until  - Show records before this time (duration or RFC3339)
  --event  - Filter by event name (glob pattern: "solved", "init*")
  --model  - Filter by model name (exact match)

Examples:
  # Everything from the last hour
  collab trials logs/trial.jsonl --since=1h

  # Solve times per model
  collab trials --summary

  # Pipe solved events to jq
  collab trials --event=solved --output=jsonl | jq .data.model`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrials,
}

func init() {
	f := trialsCmd.Flags()
	f.StringVarP(&trialsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	f.StringVar(&trialsSince, "since", "", "Show records after time (duration or RFC3339)")
	f.StringVar(&trialsUntil, "until", "", "Show records before time (duration or RFC3339)")
	f.StringVar(&trialsEvent, "event", "", "Filter by event name (glob pattern)")
	f.StringVar(&trialsModel, "model", "", "Filter by model name (exact match)")
	f.BoolVar(&trialsSummary, "summary", false, "Summarize per model trial")
	rootCmd.AddCommand(trialsCmd)
}

func runTrials(cmd *cobra.Command, args []string) error {
	if trialsOutputFormat != "default" && trialsOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", trialsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Coordinator.TrialLog
	}
	if path == "" {
		return printer.Error(
			"no trial log",
			"No trial log given and coordinator.trial_log is not set.",
			[]string{"Pass the log path:\n  collab trials logs/trial.jsonl"},
		)
	}

	rng, err := timespec.ParseRange(trialsSince, trialsUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), nil)
	}
	criteria := &filter.Criteria{Range: rng, EventGlob: trialsEvent, Model: trialsModel}

	f, err := os.Open(path)
	if err != nil {
		return printer.Error("cannot read trial log", err.Error(), nil)
	}
	defer f.Close()

	records, err := logging.ReadTrialLog(f)
	if err != nil {
		return printer.ErrorWithContext("trial log malformed", err.Error(), map[string]string{"File": path}, nil)
	}

	if trialsSummary {
		// Summaries need whole trials; only the time range applies.
		return writeSummaries(summariesIn(logging.Summarize(records), rng), trialsOutputFormat, trialsModel)
	}
	return writeRecords(criteria.Apply(records), trialsOutputFormat)
}

func summariesIn(all []logging.TrialSummary, rng timespec.Range) []logging.TrialSummary {
	out := all[:0:0]
	for _, s := range all {
		if rng.Contains(s.Started) {
			out = append(out, s)
		}
	}
	return out
}

func writeRecords(records []logging.TrialRecord, format string) error {
	if format == "jsonl" {
		enc := json.NewEncoder(printer.Out)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	}

	if len(records) == 0 {
		printer.Info("No matching records\n")
		return nil
	}
	for _, rec := range records {
		printer.Printf("%s  %-12s %s\n", rec.Time().Format("2006-01-02 15:04:05.000"), rec.Event, formatData(rec.Data))
	}
	return nil
}

func writeSummaries(summaries []logging.TrialSummary, format, model string) error {
	if format == "jsonl" {
		enc := json.NewEncoder(printer.Out)
		for _, s := range summaries {
			if model != "" && s.Model != model {
				continue
			}
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	printer.Printf("%-20s %-20s %8s %-7s %10s %10s\n", "EXPERIMENT", "MODEL", "UPDATES", "SOLVED", "TIME", "ERROR")
	solved := 0
	shown := 0
	for _, s := range summaries {
		if model != "" && s.Model != model {
			continue
		}
		shown++
		mark := "no"
		if s.Solved {
			mark = "yes"
			solved++
		}
		printer.Printf("%-20s %-20s %8d %-7s %10s %10.3f\n",
			s.Experiment, s.Model, s.Updates, mark, s.Duration.Round(time.Millisecond), s.OutputError)
	}
	printer.Println(fmt.Sprintf("\n%d of %d trial(s) solved", solved, shown))
	return nil
}

// formatData renders record data as sorted key=value pairs.
func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(data[k])
		if err != nil {
			v = []byte(fmt.Sprint(data[k]))
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, " ")
}
