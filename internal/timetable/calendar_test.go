package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studhelper/timetable-notifier/internal/model"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	return NewCalendar(loc)
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	d, err := time.ParseInLocation("2006-01-02", value, loc)
	require.NoError(t, err)
	return d
}

func TestParityFor(t *testing.T) {
	cal := testCalendar(t)
	// Якорь осеннего семестра: понедельник 02.09.2024, нечётная неделя
	anchor := date(t, "2024-09-02")

	tests := []struct {
		name   string
		target string
		want   model.Parity
	}{
		{name: "anchor monday is odd", target: "2024-09-02", want: model.ParityOdd},
		{name: "saturday of anchor week is odd", target: "2024-09-07", want: model.ParityOdd},
		{name: "next monday is even", target: "2024-09-09", want: model.ParityEven},
		{name: "two weeks after anchor is odd", target: "2024-09-16", want: model.ParityOdd},
		{name: "mid december", target: "2024-12-11", want: model.ParityEven},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.ParityFor(anchor, date(t, tt.target))
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestParityDeterminism повторное вычисление чётности даёт тот же
// результат, а сдвиг на неделю её меняет
func TestParityDeterminism(t *testing.T) {
	cal := testCalendar(t)
	anchor := date(t, "2024-09-02")

	d := date(t, "2024-10-17")
	first := cal.ParityFor(anchor, d)
	second := cal.ParityFor(anchor, d)
	assert.Equal(t, first, second)

	nextWeek := cal.ParityFor(anchor, d.AddDate(0, 0, 7))
	assert.NotEqual(t, first, nextWeek)
}

// TestParityIgnoresTimeOfDay чётность зависит только от даты
func TestParityIgnoresTimeOfDay(t *testing.T) {
	cal := testCalendar(t)
	anchor := date(t, "2024-09-02")

	morning := date(t, "2024-09-09").Add(8 * time.Hour)
	evening := date(t, "2024-09-09").Add(23*time.Hour + 59*time.Minute)
	assert.Equal(t, cal.ParityFor(anchor, morning), cal.ParityFor(anchor, evening))
}

func TestResolveAnchor(t *testing.T) {
	cal := testCalendar(t)
	settings := model.SemesterSettings{
		FallStart:   date(t, "2024-09-02"),
		SpringStart: date(t, "2025-02-10"),
	}

	tests := []struct {
		name    string
		target  string
		want    string
		wantErr bool
	}{
		{name: "during fall semester", target: "2024-11-20", want: "2024-09-02"},
		{name: "fall start itself", target: "2024-09-02", want: "2024-09-02"},
		{name: "during spring semester", target: "2025-03-15", want: "2025-02-10"},
		{name: "spring start itself", target: "2025-02-10", want: "2025-02-10"},
		{name: "before both semesters", target: "2024-08-15", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anchor, err := cal.ResolveAnchor(settings, date(t, tt.target))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoSemester)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, date(t, tt.want), anchor)
		})
	}
}

func TestNextDate(t *testing.T) {
	cal := testCalendar(t)
	anchor := date(t, "2024-09-02")

	tests := []struct {
		name    string
		ref     string
		weekday time.Weekday
		parity  model.Parity
		want    string
	}{
		{name: "same day matches", ref: "2024-09-02", weekday: time.Monday, parity: model.ParityOdd, want: "2024-09-02"},
		{name: "next even monday", ref: "2024-09-02", weekday: time.Monday, parity: model.ParityEven, want: "2024-09-09"},
		{name: "odd wednesday from even week", ref: "2024-09-10", weekday: time.Wednesday, parity: model.ParityOdd, want: "2024-09-18"},
		{name: "even saturday", ref: "2024-09-03", weekday: time.Saturday, parity: model.ParityEven, want: "2024-09-14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.NextDate(date(t, tt.ref), tt.weekday, tt.parity, anchor)
			assert.Equal(t, date(t, tt.want), got)
		})
	}
}

func TestWeekdayNumber(t *testing.T) {
	assert.Equal(t, 1, WeekdayNumber(date(t, "2024-09-02"))) // понедельник
	assert.Equal(t, 6, WeekdayNumber(date(t, "2024-09-07"))) // суббота
	assert.Equal(t, 7, WeekdayNumber(date(t, "2024-09-08"))) // воскресенье
}
