package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/studhelper/timetable-notifier/internal/model"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
	time.Sunday:    "Воскресенье",
}

var parityNames = map[model.Parity]string{
	model.ParityOdd:  "Нечетная",
	model.ParityEven: "Четная",
}

// formatReminderText текст напоминания о паре
func formatReminderText(occ model.Occurrence, offsetMinutes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>Через %d мин. начнётся пара!</b>\n\n", offsetMinutes)
	fmt.Fprintf(&b, "<b>%s – %s</b>\n%s", occ.Lesson.StartTime, occ.Lesson.EndTime, occ.Lesson.Title)
	if occ.Lesson.Room != "" {
		fmt.Fprintf(&b, "\n📍 %s", occ.Lesson.Room)
	}
	return b.String()
}

// formatDayScheduleText расписание на день: заголовок с датой,
// днём недели и типом недели, затем список пар
func formatDayScheduleText(date time.Time, parity model.Parity, occurrences []model.Occurrence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗓 <b>%s · %s</b> (%s)\n",
		date.Format("02.01.2006"), weekdayNames[date.Weekday()], parityNames[parity])

	if len(occurrences) == 0 {
		b.WriteString("\n🎉 <b>Занятий нет!</b>")
		return b.String()
	}

	parts := make([]string, 0, len(occurrences))
	for _, occ := range occurrences {
		part := fmt.Sprintf("<b>%s – %s</b>\n%s", occ.Lesson.StartTime, occ.Lesson.EndTime, occ.Lesson.Title)
		if occ.Lesson.Room != "" {
			part += fmt.Sprintf("\n📍 %s", occ.Lesson.Room)
		}
		parts = append(parts, part)
	}
	b.WriteString("\n" + strings.Join(parts, "\n\n"))
	return b.String()
}

// formatMorningSummaryText утренняя сводка на сегодня
func formatMorningSummaryText(date time.Time, parity model.Parity, occurrences []model.Occurrence) string {
	return "☀️ <b>Доброе утро!</b>\n\n<b>Ваше расписание на сегодня:</b>\n\n" +
		formatDayScheduleText(date, parity, occurrences)
}

// formatEveningDigestText вечерняя сводка на завтра
func formatEveningDigestText(date time.Time, parity model.Parity, occurrences []model.Occurrence) string {
	if len(occurrences) == 0 {
		return "🌙 <b>Добрый вечер!</b>\n\n🎉 <b>Завтра занятий нет!</b>"
	}
	return "🌙 <b>Добрый вечер!</b>\n\n<b>Ваше расписание на завтра:</b>\n\n" +
		formatDayScheduleText(date, parity, occurrences)
}
