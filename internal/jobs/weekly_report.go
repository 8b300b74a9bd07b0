package jobs

import (
	"context"
	"time"

	"github.com/synergysphere/server/internal/services"
)

// ReportGenerator is implemented by *services.ReportService.
type ReportGenerator interface {
	Generate(ctx context.Context, now time.Time) (*services.ReportResult, error)
}

// WeeklyReportJob renders and distributes the weekly team report.
type WeeklyReportJob struct {
	reports ReportGenerator
}

func NewWeeklyReportJob(reports ReportGenerator) *WeeklyReportJob {
	return &WeeklyReportJob{reports: reports}
}

func (j *WeeklyReportJob) Name() string { return "weekly-report" }

func (j *WeeklyReportJob) Run(ctx context.Context, now time.Time) error {
	_, err := j.reports.Generate(ctx, now)
	return err
}
