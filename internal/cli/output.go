package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/emiliopalmerini/caseconf/internal/assignment"
	"github.com/emiliopalmerini/caseconf/internal/domain"
	"github.com/emiliopalmerini/caseconf/internal/pkg/theme"
	"github.com/emiliopalmerini/caseconf/internal/util"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func armNames(arms []domain.Arm) string {
	names := make([]string, len(arms))
	for i, a := range arms {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func casePool(pool []int64) string {
	if pool == nil {
		return "all cases"
	}
	return fmt.Sprintf("%d cases", len(pool))
}

func printExperiments(w io.Writer, exps []*domain.Experiment) error {
	if len(exps) == 0 {
		fmt.Fprintln(w, theme.Default().Muted.Render("No experiments found."))
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tARMS\tPOOL\tCREATED")
	for _, e := range exps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ExperimentID, e.Name, e.Status, armNames(e.Arms), casePool(e.CasePool), util.FormatDateTime(e.CreatedAt))
	}
	return tw.Flush()
}

func printExperiment(w io.Writer, e *domain.Experiment) {
	s := theme.Default()
	fmt.Fprintln(w, s.Title.Render(e.Name))
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("ID:         "), e.ExperimentID)
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Status:     "), s.Status(string(e.Status)).Render(string(e.Status)))
	if e.Description != nil {
		fmt.Fprintf(w, "%s %s\n", s.Label.Render("Description:"), *e.Description)
	}
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Case pool:  "), casePool(e.CasePool))
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Created:    "), util.FormatDateTime(e.CreatedAt))
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Updated:    "), util.FormatDateTime(e.UpdatedAt))
	fmt.Fprintln(w, s.Label.Render("Arms:"))
	for _, a := range e.Arms {
		line := "  - " + a.Name
		if a.Weight != nil {
			line += " (weight " + strconv.FormatFloat(*a.Weight, 'g', -1, 64) + ")"
		}
		if a.Description != "" {
			line += ": " + a.Description
		}
		fmt.Fprintln(w, line)
	}
}

func printRuns(w io.Writer, runs []*domain.RlRun) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, theme.Default().Muted.Render("No runs found."))
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTATUS\tTRIGGERED BY\tMODEL\tCONFIGS\tANSWERS\tCREATED\tFINISHED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.TriggeredBy, util.Deref(r.ModelVersion, "-"),
			util.FormatInt64Ptr(r.ConfigsGenerated), util.FormatInt64Ptr(r.AnswersConsumed),
			util.FormatDateTime(r.CreatedAt), util.FormatDateTimePtr(r.CompletedAt))
	}
	return tw.Flush()
}

func printRun(w io.Writer, r *domain.RlRun) {
	s := theme.Default()
	fmt.Fprintf(w, "Run %d (%s): %s\n", r.ID, r.ExperimentID, s.Status(string(r.Status)).Render(string(r.Status)))
}

func printBatch(w io.Writer, result *assignment.BatchResult) {
	s := theme.Default()
	for _, o := range result.Results {
		caseID := "-"
		if o.CaseID != nil {
			caseID = strconv.FormatInt(*o.CaseID, 10)
		}
		user := o.UserEmail
		if user == "" {
			user = "-"
		}
		line := fmt.Sprintf("%-6s %s case %s", o.Status, user, caseID)
		if o.Status == assignment.StatusAdded {
			line += " " + s.Muted.Render(o.ID)
		} else {
			line += ": " + o.Error
		}
		fmt.Fprintln(w, s.Status(o.Status).Render(line))
	}
	added, failed := result.Counts()
	fmt.Fprintf(w, "%s %d added, %d failed of %d\n", s.Bold.Render("Batch:"), added, failed, result.Total)
}
