package events

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	dateparser "github.com/markusmobius/go-dateparser"
)

const (
	DefaultPage  = 1
	DefaultLimit = 2
	MaxLimit     = 100

	// maxOffset keeps (page-1)*limit within a postgres integer.
	maxOffset = math.MaxInt32
)

// Filters narrows an event listing. Zero-valued fields are not applied.
type Filters struct {
	Title    string
	Location string
	// Date matches events on the same UTC calendar day.
	Date *time.Time
	// Capacity matches the number of open seats exactly.
	Capacity *int

	Page  int
	Limit int
}

// Offset is the number of rows skipped before the requested page.
func (f Filters) Offset() int {
	page := f.Page
	if page < 1 {
		page = DefaultPage
	}
	return (page - 1) * f.PageSize()
}

// PageSize is Limit, or DefaultLimit when unset.
func (f Filters) PageSize() int {
	if f.Limit < 1 {
		return DefaultLimit
	}
	return f.Limit
}

// DayRange returns the half-open [start, end) interval for the Date filter.
func (f Filters) DayRange() (time.Time, time.Time, bool) {
	if f.Date == nil {
		return time.Time{}, time.Time{}, false
	}
	start := truncateDay(*f.Date)
	return start, start.AddDate(0, 0, 1), true
}

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseFilters reads listing filters and pagination from query parameters.
func ParseFilters(values url.Values) (Filters, error) {
	filters := Filters{
		Title:    strings.TrimSpace(values.Get("title")),
		Location: strings.TrimSpace(values.Get("location")),
	}

	limit, err := parsePositive(values, "limit", DefaultLimit, MaxLimit)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit

	page, err := parsePositive(values, "page", DefaultPage, maxOffset/limit+1)
	if err != nil {
		return filters, err
	}
	filters.Page = page

	if raw := strings.TrimSpace(values.Get("date")); raw != "" {
		date, err := ParseDate(raw)
		if err != nil {
			return filters, FilterError{Field: "date", Message: "must be a date"}
		}
		day := truncateDay(date)
		filters.Date = &day
	}

	if raw := strings.TrimSpace(values.Get("capacity")); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			return filters, FilterError{Field: "capacity", Message: "must be a number"}
		}
		if capacity < 0 || capacity > MaxCapacity {
			return filters, FilterError{Field: "capacity", Message: fmt.Sprintf("must be between 0 and %d", MaxCapacity)}
		}
		filters.Capacity = &capacity
	}

	return filters, nil
}

// parsePositive reads an integer >= 1. A max of zero means unbounded.
func parsePositive(values url.Values, field string, fallback, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(field))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, FilterError{Field: field, Message: "must be a number"}
	}
	if parsed < 1 {
		return 0, FilterError{Field: field, Message: "must be at least 1"}
	}
	if max > 0 && parsed > max {
		return 0, FilterError{Field: field, Message: fmt.Sprintf("must be between 1 and %d", max)}
	}
	return parsed, nil
}

// ParseDate accepts RFC 3339, a plain YYYY-MM-DD date, or any format the
// natural-language date parser understands.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := dateparser.Parse(nil, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	if parsed.Time.IsZero() {
		return time.Time{}, fmt.Errorf("parse date %q: no date found", raw)
	}
	return parsed.Time.UTC(), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
