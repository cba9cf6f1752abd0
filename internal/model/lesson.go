package model

import (
	"fmt"
	"time"
)

// Parity чередование учебных недель
type Parity string

const (
	ParityOdd   Parity = "odd"   // нечётная неделя (неделя якоря семестра)
	ParityEven  Parity = "even"  // чётная неделя
	ParityEvery Parity = "every" // пара идёт каждую неделю
)

// Matches true, если пара с таким чередованием идёт на неделе p
func (lp Parity) Matches(p Parity) bool {
	return lp == ParityEvery || lp == p
}

// Lesson неизменяемый шаблон пары из расписания группы
type Lesson struct {
	ID        int64  `json:"id"`
	Group     string `json:"group"`
	Title     string `json:"title"`
	Room      string `json:"room"`
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM
	Weekday   int    `json:"weekday"`    // 1 = понедельник, 6 = суббота
	Parity    Parity `json:"parity"`
}

// Occurrence конкретное проведение пары в календарную дату.
// Не хранится в БД, материализуется планировщиком.
type Occurrence struct {
	Lesson   Lesson    `json:"lesson"`
	Date     time.Time `json:"date"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// NewOccurrence материализует пару на дату date (полночь в loc)
func NewOccurrence(lesson Lesson, date time.Time, loc *time.Location) (Occurrence, error) {
	startsAt, err := combine(date, lesson.StartTime, loc)
	if err != nil {
		return Occurrence{}, fmt.Errorf("lesson %d start time: %w", lesson.ID, err)
	}
	endsAt, err := combine(date, lesson.EndTime, loc)
	if err != nil {
		return Occurrence{}, fmt.Errorf("lesson %d end time: %w", lesson.ID, err)
	}
	return Occurrence{Lesson: lesson, Date: date, StartsAt: startsAt, EndsAt: endsAt}, nil
}

func combine(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
