package reports

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
)

// RenderPDF lays the report out on a summary page and a metrics page.
func RenderPDF(report WeeklyReport) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("SynergySphere Weekly Report", true)
	pdf.SetAuthor("SynergySphere", true)
	pdf.SetCreationDate(report.GeneratedAt)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, "SynergySphere Weekly Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, "Generated on: "+report.GeneratedAt.Format("January 2, 2006"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	heading(pdf, "Weekly Summary")
	line(pdf, fmt.Sprintf("Total tasks completed: %d", report.TotalCompleted))
	line(pdf, fmt.Sprintf("Total feedback items: %d", report.TotalFeedback))
	line(pdf, fmt.Sprintf("Active team members: %d", report.ActiveMembers))
	pdf.Ln(4)

	heading(pdf, "Tasks Completed by User")
	if len(report.CompletedByUser) == 0 {
		line(pdf, "No tasks completed this week.")
	}
	for _, uc := range report.CompletedByUser {
		line(pdf, tr(fmt.Sprintf("%s: %d tasks", uc.Username, uc.Count)))
	}
	pdf.Ln(4)

	heading(pdf, "Recent Feedback Highlights")
	if len(report.RecentFeedback) == 0 {
		line(pdf, "No feedback this week.")
	}
	for _, fb := range report.RecentFeedback {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, tr(fb.Task+" - "+fb.User), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, tr(fb.Content), "", "L", false)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 5, fb.Date.Format("2006-01-02"), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	pdf.AddPage()
	heading(pdf, "Performance Metrics")
	line(pdf, fmt.Sprintf("Average task completion time: %d days", report.AvgCompletionDays))
	pdf.Ln(3)
	line(pdf, "Tasks by Priority:")
	for _, pc := range report.ByPriority {
		line(pdf, fmt.Sprintf("%s: %d tasks", pc.Priority, pc.Count))
	}
	pdf.Ln(6)

	heading(pdf, "Recommendations for Next Week")
	for i, rec := range report.Recommendations {
		line(pdf, fmt.Sprintf("%d. %s", i+1, rec))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to render report PDF")
	}
	return buf.Bytes(), nil
}

func heading(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 10, text, "", 1, "L", false, 0, "")
}

func line(pdf *fpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, text, "", "L", false)
}
