package util

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard five fields (minute, hour, day, month, weekday)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextCronTime returns the next occurrence of cronExpr after from, in UTC.
func NextCronTime(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := ParseCronSchedule(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from.UTC()), nil
}

// ValidateCronExpr checks if a cron expression is valid.
func ValidateCronExpr(cronExpr string) error {
	_, err := ParseCronSchedule(cronExpr)
	return err
}

// ParseCronSchedule parses a five-field cron expression.
func ParseCronSchedule(cronExpr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// NewCron returns a cron runner that uses the same five-field syntax as the
// helpers above.
func NewCron(loc *time.Location) *cron.Cron {
	if loc == nil {
		loc = time.UTC
	}
	return cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))
}
