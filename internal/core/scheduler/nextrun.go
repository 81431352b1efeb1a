package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"storescraper/internal/core/job"

	"github.com/robfig/cron/v3"
)

// InvalidScheduleError reports a schedule that cannot be turned into a
// trigger: a time-of-day not matching HH:MM, or an unknown recurrence.
type InvalidScheduleError struct {
	Value  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %s", e.Value, e.Reason)
}

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

func parseTimeOfDay(scheduleTime string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(scheduleTime)
	if m == nil {
		return 0, 0, &InvalidScheduleError{Value: scheduleTime, Reason: "schedule time must match HH:MM"}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// ComputeNextRun returns the next instant a job with the given recurrence
// should fire, evaluated in loc. The candidate is today at scheduleTime; if
// that is not strictly in the future it advances one day. every_3_days adds
// two more days on top of the daily candidate, weekly adds six.
func ComputeNextRun(scheduleType job.ScheduleType, scheduleTime string, now time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(scheduleTime)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	switch scheduleType {
	case job.ScheduleDaily:
		return candidate, nil
	case job.ScheduleEvery3Days:
		return candidate.AddDate(0, 0, 2), nil
	case job.ScheduleWeekly:
		return candidate.AddDate(0, 0, 6), nil
	default:
		return time.Time{}, &InvalidScheduleError{Value: string(scheduleType), Reason: "unknown schedule type"}
	}
}

// TriggerSchedule builds the recurring trigger backing a job, evaluated in
// loc. Daily and weekly recurrences map onto plain cron expressions; weekly
// jobs fire on a fixed weekday (Monday) so behavior does not depend on when
// the job happened to be created. every_3_days gets a real interval schedule:
// cron's day-of-month step ("*/3") shrinks to a single day at month
// boundaries and would disagree with the NextRunAt that ComputeNextRun
// persists.
func TriggerSchedule(scheduleType job.ScheduleType, scheduleTime string, loc *time.Location) (cron.Schedule, error) {
	hour, minute, err := parseTimeOfDay(scheduleTime)
	if err != nil {
		return nil, err
	}
	switch scheduleType {
	case job.ScheduleDaily:
		return cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	case job.ScheduleEvery3Days:
		return &intervalSchedule{days: 3, hour: hour, minute: minute, loc: loc}, nil
	case job.ScheduleWeekly:
		return cron.ParseStandard(fmt.Sprintf("%d %d * * 1", minute, hour))
	default:
		return nil, &InvalidScheduleError{Value: string(scheduleType), Reason: "unknown schedule type"}
	}
}

// intervalSchedule fires at a fixed time of day every n days. Next applies
// the same arithmetic as ComputeNextRun, so the trigger and the persisted
// next-run timestamp always agree.
type intervalSchedule struct {
	days         int
	hour, minute int
	loc          *time.Location
}

func (s *intervalSchedule) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.AddDate(0, 0, s.days-1)
}
