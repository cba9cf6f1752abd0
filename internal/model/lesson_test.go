package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParityMatches(t *testing.T) {
	tests := []struct {
		name   string
		lesson Parity
		week   Parity
		want   bool
	}{
		{"нечётная пара на нечётной неделе", ParityOdd, ParityOdd, true},
		{"нечётная пара на чётной неделе", ParityOdd, ParityEven, false},
		{"чётная пара на чётной неделе", ParityEven, ParityEven, true},
		{"еженедельная пара на нечётной неделе", ParityEvery, ParityOdd, true},
		{"еженедельная пара на чётной неделе", ParityEvery, ParityEven, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lesson.Matches(tt.week))
		})
	}
}

func TestNewOccurrence(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	lesson := Lesson{
		ID:        1,
		Title:     "СИСТЕМНОЕ ПО",
		StartTime: "10:50",
		EndTime:   "12:25",
	}
	date := time.Date(2024, 9, 9, 0, 0, 0, 0, loc)

	occ, err := NewOccurrence(lesson, date, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 9, 10, 50, 0, 0, loc), occ.StartsAt)
	assert.Equal(t, time.Date(2024, 9, 9, 12, 25, 0, 0, loc), occ.EndsAt)
}

// TestNewOccurrenceInvalidTime битое время из каталога — ошибка,
// а не паника или полуночная пара
func TestNewOccurrenceInvalidTime(t *testing.T) {
	lesson := Lesson{ID: 2, StartTime: "25:99", EndTime: "12:25"}
	_, err := NewOccurrence(lesson, time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindLessonReminder.Valid())
	assert.True(t, KindMorningSummary.Valid())
	assert.True(t, KindEveningDigest.Valid())
	assert.False(t, Kind("exam_results").Valid())
	assert.False(t, Kind("").Valid())
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDispatched.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
