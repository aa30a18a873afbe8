package commands

import (
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/orchestrator"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

func NewTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func renderRunResult(out io.Writer, result orchestrator.RunResult) {
	t := NewTable(out)
	t.AppendHeader(table.Row{"Pass", "Resources", "Quizzes", "Failed resources", "Failed quizzes", "Unclassified left"})
	for _, p := range result.Passes {
		t.AppendRow(table.Row{p.Pass, p.Resources, p.Quizzes, p.ResourcesFailed, p.QuizzesFailed, p.HasRemaining})
	}
	t.AppendFooter(table.Row{
		"Total",
		result.CompletedResources(),
		result.CompletedQuizzes(),
		result.FailedResources(),
		result.FailedQuizzes(),
		"",
	})
	t.Render()
}

func renderScan(out io.Writer, scan extract.CourseScan) {
	t := NewTable(out)
	t.AppendHeader(table.Row{"Id", "Kind", "Name", "Status"})
	for _, a := range scan.Activities {
		status := "pending"
		if a.AlreadyComplete {
			status = "complete"
		}
		t.AppendRow(table.Row{a.Id, a.Kind.String(), a.DisplayName, status})
	}
	resources, quizzes := scan.Pending()
	t.AppendFooter(table.Row{"", "", "pending resources", len(resources)})
	t.AppendFooter(table.Row{"", "", "pending quizzes", len(quizzes)})
	if scan.Unlinked > 0 || scan.Unidentified > 0 {
		t.AppendFooter(table.Row{"", "", "without link / without id", fmt.Sprintf("%d / %d", scan.Unlinked, scan.Unidentified)})
	}
	t.Render()
}
