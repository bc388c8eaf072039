package table

import (
	"context"
	"fmt"
	"time"
)

func sampleRecord(title string) Record {
	return Record{
		Title:        title,
		ActivityType: ActivityTypeActivity,
		GeoTarget:    true,
		BusinessUnit: BusinessUnitHigherEd,
		Environment:  EnvironmentPROD,
		URLs:         []string{"https://one.example.com", "https://two.example.com"},
		Live:         true,
		EndDate:      NewDate(2031, time.March, 4),
	}
}

type fetcherFunc func(ctx context.Context) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

type recordLogger struct{ lines *[]string }

func (l recordLogger) Warnf(format string, args ...interface{}) {
	*l.lines = append(*l.lines, fmt.Sprintf(format, args...))
}
