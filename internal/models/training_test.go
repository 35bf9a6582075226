package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeSeverity(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dueDate time.Time
		want    Severity
	}{
		{"past due date", now.Add(-time.Hour), SeverityOverdue},
		{"due in a week", now.AddDate(0, 0, 7), SeverityHigh},
		{"due exactly in one month", now.AddDate(0, 1, 0), SeverityHigh},
		{"due in two months", now.AddDate(0, 2, 0), SeverityMedium},
		{"due exactly in three months", now.AddDate(0, 3, 0), SeverityMedium},
		{"due in six months", now.AddDate(0, 6, 0), SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeSeverity(tt.dueDate, now))
		})
	}
}
