package timetable

import (
	"errors"
	"math"
	"time"

	"github.com/studhelper/timetable-notifier/internal/model"
)

// ErrNoSemester для целевой даты нет подходящего якоря семестра.
// Это ошибка конфигурации: повторное планирование с теми же входными
// данными даст её снова, ретраить бессмысленно.
var ErrNoSemester = errors.New("no semester anchor for target date")

// Calendar чистый резолвер календаря семестра. Не имеет состояния,
// безопасен для конкурентного использования.
type Calendar struct {
	loc *time.Location
}

// NewCalendar создаёт резолвер в указанной таймзоне
func NewCalendar(loc *time.Location) *Calendar {
	return &Calendar{loc: loc}
}

// Location возвращает таймзону календаря
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Midnight нормализует момент времени к локальной полуночи
func (c *Calendar) Midnight(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

// ResolveAnchor выбирает самый поздний из якорей семестров, дата которого
// не позже target. Если target раньше обоих якорей — ErrNoSemester.
func (c *Calendar) ResolveAnchor(s model.SemesterSettings, target time.Time) (time.Time, error) {
	day := c.Midnight(target)
	fall := c.Midnight(s.FallStart)
	spring := c.Midnight(s.SpringStart)

	var anchor time.Time
	for _, candidate := range []time.Time{fall, spring} {
		if !candidate.After(day) && candidate.After(anchor) {
			anchor = candidate
		}
	}
	if anchor.IsZero() {
		return time.Time{}, ErrNoSemester
	}
	return anchor, nil
}

// ParityFor определяет чётность недели даты target относительно якоря.
// Неделя самого якоря — нечётная. Функция чистая: один и тот же вход
// всегда даёт один и тот же результат, что важно при рестартах
// планировщика, пересчитывающего историю.
func (c *Calendar) ParityFor(anchor, target time.Time) model.Parity {
	a := c.Midnight(anchor)
	d := c.Midnight(target)

	// Round сглаживает возможный сдвиг на час при переводе часов
	days := int(math.Round(d.Sub(a).Hours() / 24))
	weekIndex := days / 7
	if days < 0 {
		// даты до якоря считаем нечётными, как и сам якорь
		return model.ParityOdd
	}
	if weekIndex%2 == 0 {
		return model.ParityOdd
	}
	return model.ParityEven
}

// NextDate возвращает ближайшую дату >= ref с заданным днём недели
// и чётностью. Используется для материализации Occurrence в окне
// планирования.
func (c *Calendar) NextDate(ref time.Time, weekday time.Weekday, p model.Parity, anchor time.Time) time.Time {
	day := c.Midnight(ref)
	// чётность повторяется каждые 14 дней, дальше искать незачем
	for i := 0; i < 14; i++ {
		if day.Weekday() == weekday && c.ParityFor(anchor, day) == p {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// WeekdayNumber переводит time.Weekday в номер дня 1-7 (понедельник = 1).
// Расписание хранит дни 1-6, воскресенье (7) всегда пустое.
func WeekdayNumber(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
