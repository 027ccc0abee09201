package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/wdeploy/internal/model"
)

// TablePrinter prints deployment information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintWorkers prints workers in a table format.
func (t *TablePrinter) PrintWorkers(workers []model.Worker) error {
	if len(workers) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tORGANIZATION\tREGION\tADDRESS")
	for _, w := range workers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			w.ID,
			w.Name,
			w.Status,
			orDash(w.Organization),
			orDash(w.Region),
			orDash(w.Address),
		)
	}

	return nil
}

// PrintRunList prints deploy runs in a table format.
func (t *TablePrinter) PrintRunList(runs []model.DeployRun) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tKIND\tSTATE\tWORKERS\tOK\tFAILED\tPROGRESS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d%%\t%s\n",
			r.ID,
			r.Kind,
			RunState(r),
			r.WorkerCount(),
			r.SuccessCount,
			len(r.FailedItems),
			r.ProgressPercentage(),
			TimeAgo(r.StartedAt),
		)
	}

	return nil
}

// PrintRun prints the detailed run with its outcome log, most recent first.
func (t *TablePrinter) PrintRun(run model.DeployRun) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", run.ID)
	fmt.Fprintf(t.writer, "Kind:       %s\n", run.Kind)
	fmt.Fprintf(t.writer, "State:      %s\n", RunState(run))
	fmt.Fprintf(t.writer, "Workers:    %d\n", run.WorkerCount())
	fmt.Fprintf(t.writer, "Succeeded:  %d\n", run.SuccessCount)
	fmt.Fprintf(t.writer, "Failed:     %d\n", len(run.FailedItems))
	fmt.Fprintf(t.writer, "Progress:   %d%%\n", run.ProgressPercentage())
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(run.StartedAt))
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*run.FinishedAt))
		if !run.StartedAt.IsZero() {
			fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
		}
	}
	if run.LastError != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", run.LastError)
	}

	if len(run.Outcomes) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "WORKER\tNAME\tSTATUS\tDETAIL\tFINISHED")
	for i := len(run.Outcomes) - 1; i >= 0; i-- {
		o := run.Outcomes[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.Worker.ID,
			o.Worker.Name,
			o.Status,
			orDash(o.Detail),
			FormatTimestamp(o.FinishedAt),
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

// RunState returns a short human state for a run.
func RunState(r model.DeployRun) string {
	switch {
	case r.IsRunning:
		return "running"
	case r.LastError != "":
		return "failed"
	case r.Stopped:
		return "stopped"
	case len(r.NotOK()) > 0:
		return "completed with failures"
	case r.FinishedAt != nil:
		return "completed"
	}
	return "idle"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
