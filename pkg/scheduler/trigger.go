package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidTrigger = errors.New("invalid trigger")
	ErrPastDate       = errors.New("run date is in the past")
)

// cronFields are read from the trigger config in standard five-field order.
var cronFields = []string{"minute", "hour", "day", "month", "day_of_week"}

// weekdays lists day_of_week names in field-config numbering, where 0 is Monday.
var weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTrigger builds the runtime schedule for a task. Cron configs take the
// fields minute, hour, day, month and day_of_week (missing fields are "*"),
// or a whole five-field "expression". A numeric day_of_week in the field form
// counts from 0 = Monday; the expression form uses cron's 0 = Sunday. Interval configs add up seconds,
// minutes, hours and days. Date configs carry an RFC 3339 "run_date"; a date
// without a zone is read in location.
//
// nolint:ireturn
func ParseTrigger(triggerType models.TriggerType, config map[string]any, location *time.Location) (cron.Schedule, error) {
	switch triggerType {
	case models.TriggerTypeCron:
		return parseCron(config)
	case models.TriggerTypeInterval:
		return parseInterval(config)
	case models.TriggerTypeDate:
		runDate, err := parseRunDate(config["run_date"], location)
		if err != nil {
			return nil, err
		}

		return &onceSchedule{at: runDate}, nil
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, triggerType)
	}
}

// nolint:ireturn
func parseCron(config map[string]any) (cron.Schedule, error) {
	expression, _ := config["expression"].(string)

	if expression == "" {
		fields := make([]string, 0, len(cronFields))

		for _, name := range cronFields {
			field := "*"

			if value, ok := config[name]; ok && value != nil {
				field = strings.TrimSpace(fmt.Sprint(value))
				if field == "" {
					field = "*"
				}
			}

			if name == "day_of_week" {
				var err error

				field, err = cronWeekdays(field)
				if err != nil {
					return nil, err
				}
			}

			fields = append(fields, field)
		}

		expression = strings.Join(fields, " ")
	}

	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: cron %q: %w", ErrInvalidTrigger, expression, err)
	}

	return schedule, nil
}

// cronWeekdays rewrites a Monday-based day_of_week field into an explicit
// Sunday-based list, so ranges that wrap past Sunday keep working.
func cronWeekdays(field string) (string, error) {
	if field == "*" || field == "?" {
		return field, nil
	}

	var days []string

	for part := range strings.SplitSeq(strings.ToLower(field), ",") {
		span, stepText, stepped := strings.Cut(part, "/")

		step := 1

		if stepped {
			n, err := strconv.Atoi(stepText)
			if err != nil || n < 1 {
				return "", fmt.Errorf("%w: day_of_week step %q", ErrInvalidTrigger, stepText)
			}

			step = n
		}

		first, last := 0, len(weekdays)-1

		if span != "*" {
			from, to, isRange := strings.Cut(span, "-")

			var err error

			if first, err = weekdayIndex(from); err != nil {
				return "", err
			}

			switch {
			case isRange:
				if last, err = weekdayIndex(to); err != nil {
					return "", err
				}
			case !stepped:
				last = first
			}

			if last < first {
				return "", fmt.Errorf("%w: day_of_week range %q", ErrInvalidTrigger, span)
			}
		}

		for day := first; day <= last; day += step {
			days = append(days, strconv.Itoa((day+1)%len(weekdays)))
		}
	}

	return strings.Join(days, ","), nil
}

func weekdayIndex(value string) (int, error) {
	value = strings.TrimSpace(value)

	for i, name := range weekdays {
		if value == name {
			return i, nil
		}
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n >= len(weekdays) {
		return 0, fmt.Errorf("%w: day_of_week %q", ErrInvalidTrigger, value)
	}

	return n, nil
}

// nolint:ireturn
func parseInterval(config map[string]any) (cron.Schedule, error) {
	units := []struct {
		key  string
		unit time.Duration
	}{
		{"seconds", time.Second},
		{"minutes", time.Minute},
		{"hours", time.Hour},
		{"days", 24 * time.Hour},
	}

	var every time.Duration

	for _, u := range units {
		value, ok := config[u.key]
		if !ok || value == nil {
			continue
		}

		amount, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("%w: interval %s: %w", ErrInvalidTrigger, u.key, err)
		}

		if amount < 0 {
			return nil, fmt.Errorf("%w: interval %s must not be negative", ErrInvalidTrigger, u.key)
		}

		every += time.Duration(amount * float64(u.unit))
	}

	if every < time.Second {
		return nil, fmt.Errorf("%w: interval must be at least one second", ErrInvalidTrigger)
	}

	return cron.Every(every), nil
}

func parseRunDate(value any, location *time.Location) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", time.DateOnly}

		for _, layout := range layouts {
			if layout == time.RFC3339Nano {
				if t, err := time.Parse(layout, v); err == nil {
					return t, nil
				}

				continue
			}

			if t, err := time.ParseInLocation(layout, v, location); err == nil {
				return t, nil
			}
		}

		return time.Time{}, fmt.Errorf("%w: cannot parse run_date %q", ErrInvalidTrigger, v)
	case nil:
		return time.Time{}, fmt.Errorf("%w: date trigger requires run_date", ErrInvalidTrigger)
	default:
		return time.Time{}, fmt.Errorf("%w: run_date must be a string, got %T", ErrInvalidTrigger, value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", value)
	}
}

// onceSchedule fires a single time. Next returns the zero time once the date
// has passed, which cron treats as "never again".
type onceSchedule struct {
	at time.Time
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}

	return time.Time{}
}

// nextRun is the next fire time after now, or nil when the schedule is exhausted.
func nextRun(schedule cron.Schedule, now time.Time) *time.Time {
	next := schedule.Next(now)
	if next.IsZero() {
		return nil
	}

	next = next.UTC()

	return &next
}
