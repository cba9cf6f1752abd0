package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/studhelper/timetable-notifier/internal/queue"
	"github.com/studhelper/timetable-notifier/internal/repository"
	"go.uber.org/zap"
)

// LessonCatalog каталог расписания, нужный административным командам
type LessonCatalog interface {
	Groups(ctx context.Context) ([]string, error)
}

// TimetableCache кэш расписания со сбросом по группе или целиком
type TimetableCache interface {
	Invalidate(group string)
	InvalidateAll()
}

// DLQSource чтение сообщений, осевших в DLQ после исчерпания попыток
type DLQSource interface {
	FailedMessages(ctx context.Context, limit int) ([]*queue.FailedMessage, error)
}

// AdminController административные команды бота: /semester — даты
// семестров, /refresh — сброс кэша расписания, /dlq — осмотр DLQ.
type AdminController struct {
	semesterRepo *repository.SemesterRepository
	catalog      LessonCatalog
	cache        TimetableCache
	dlq          DLQSource
	isAdmin      func(telegramID int64) bool
	loc          *time.Location
	logger       *zap.Logger
}

func NewAdminController(
	semesterRepo *repository.SemesterRepository,
	catalog LessonCatalog,
	cache TimetableCache,
	dlq DLQSource,
	isAdmin func(int64) bool,
	loc *time.Location,
	logger *zap.Logger,
) *AdminController {
	return &AdminController{
		semesterRepo: semesterRepo,
		catalog:      catalog,
		cache:        cache,
		dlq:          dlq,
		isAdmin:      isAdmin,
		loc:          loc,
		logger:       logger,
	}
}

// RegisterHandlers регистрирует обработчики команд
func (c *AdminController) RegisterHandlers(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/semester", bot.MatchTypePrefix, c.HandleSemester)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/refresh", bot.MatchTypePrefix, c.HandleRefresh)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/dlq", bot.MatchTypePrefix, c.HandleDLQ)
}

// HandleSemester показывает или обновляет настройки семестров.
// Формат обновления: /semester 02.09.2024 10.02.2025
func (c *AdminController) HandleSemester(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	fromID := update.Message.From.ID

	if !c.isAdmin(fromID) {
		c.reply(ctx, b, chatID, "⛔ Команда доступна только администраторам.")
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) == 0 {
		c.showSettings(ctx, b, chatID)
		return
	}

	if len(args) != 2 {
		c.reply(ctx, b, chatID, "Формат: /semester ДД.ММ.ГГГГ ДД.ММ.ГГГГ (осень, весна)")
		return
	}

	fall, err := time.ParseInLocation("02.01.2006", args[0], c.loc)
	if err != nil {
		c.reply(ctx, b, chatID, fmt.Sprintf("Не понял дату осеннего семестра: %s", args[0]))
		return
	}
	spring, err := time.ParseInLocation("02.01.2006", args[1], c.loc)
	if err != nil {
		c.reply(ctx, b, chatID, fmt.Sprintf("Не понял дату весеннего семестра: %s", args[1]))
		return
	}

	// Якорь — понедельник нечётной недели, иначе чётность поедет
	if fall.Weekday() != time.Monday || spring.Weekday() != time.Monday {
		c.reply(ctx, b, chatID, "⚠️ Обе даты должны быть понедельниками (начало нечётной недели).")
		return
	}

	if err := c.semesterRepo.Update(ctx, fall, spring, fromID); err != nil {
		c.logger.Error("Failed to update semester settings",
			zap.Int64("admin_id", fromID),
			zap.Error(err))
		c.reply(ctx, b, chatID, "❌ Не удалось сохранить настройки, попробуйте позже.")
		return
	}

	c.logger.Info("Semester settings updated",
		zap.Int64("admin_id", fromID),
		zap.Time("fall_start", fall),
		zap.Time("spring_start", spring))

	c.reply(ctx, b, chatID, fmt.Sprintf(
		"✅ <b>Настройки семестров обновлены.</b>\n\n🍂 Осенний семестр: %s\n🌸 Весенний семестр: %s\n\nИзменения вступят в силу со следующего тика планировщика.",
		fall.Format("02.01.2006"), spring.Format("02.01.2006")))
}

// HandleRefresh сбрасывает кэш расписания: /refresh — целиком,
// /refresh <группа> — только указанную группу. Применяется после
// обновления каталога внешним загрузчиком.
func (c *AdminController) HandleRefresh(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if !c.isAdmin(update.Message.From.ID) {
		c.reply(ctx, b, chatID, "⛔ Команда доступна только администраторам.")
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) > 0 {
		group := strings.ToUpper(args[0])
		c.cache.Invalidate(group)
		c.logger.Info("Timetable cache invalidated", zap.String("group", group))
		c.reply(ctx, b, chatID, fmt.Sprintf("🔄 Кэш расписания группы <b>%s</b> сброшен.", group))
		return
	}

	c.cache.InvalidateAll()
	c.logger.Info("Timetable cache invalidated for all groups")

	groups, err := c.catalog.Groups(ctx)
	if err != nil {
		c.logger.Error("Failed to list timetable groups", zap.Error(err))
		c.reply(ctx, b, chatID, "🔄 Кэш расписания сброшен, но список групп получить не удалось.")
		return
	}
	c.reply(ctx, b, chatID, fmt.Sprintf("🔄 Кэш расписания сброшен. Групп в каталоге: <b>%d</b>.", len(groups)))
}

// HandleDLQ показывает последние сообщения DLQ: /dlq [количество]
func (c *AdminController) HandleDLQ(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if !c.isAdmin(update.Message.From.ID) {
		c.reply(ctx, b, chatID, "⛔ Команда доступна только администраторам.")
		return
	}

	limit := dlqLimit(strings.Fields(update.Message.Text)[1:])
	failed, err := c.dlq.FailedMessages(ctx, limit)
	if err != nil {
		c.logger.Error("Failed to read DLQ", zap.Error(err))
		c.reply(ctx, b, chatID, "❌ Не удалось прочитать DLQ.")
		return
	}

	c.reply(ctx, b, chatID, formatDLQText(failed))
}

// dlqLimit размер выборки DLQ из аргументов команды
func dlqLimit(args []string) int {
	const defaultLimit = 10
	if len(args) == 0 {
		return defaultLimit
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return n
}

// formatDLQText сводка по осевшим сообщениям для оператора
func formatDLQText(failed []*queue.FailedMessage) string {
	if len(failed) == 0 {
		return "✅ <b>DLQ пуст.</b>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💀 <b>Сообщений в DLQ: %d</b>\n", len(failed))
	for _, fm := range failed {
		fmt.Fprintf(&sb, "\n• <b>%s</b> → %d (попыток: %d)\n  %s\n  <i>%s</i>",
			fm.Message.Kind, fm.Message.UserID, fm.Attempts,
			fm.FailedAt.Format("02.01.2006 15:04"), fm.Error)
	}
	return sb.String()
}

func (c *AdminController) showSettings(ctx context.Context, b *bot.Bot, chatID int64) {
	settings, err := c.semesterRepo.Get(ctx)
	if err != nil {
		c.logger.Error("Failed to load semester settings", zap.Error(err))
		c.reply(ctx, b, chatID, "❌ Не удалось получить настройки.")
		return
	}
	if settings == nil {
		c.reply(ctx, b, chatID, "⚠️ <b>Настройки семестров не установлены!</b>\n\nЗадайте их: /semester ДД.ММ.ГГГГ ДД.ММ.ГГГГ")
		return
	}

	c.reply(ctx, b, chatID, fmt.Sprintf(
		"📅 <b>Текущие настройки семестров:</b>\n\n🍂 <b>Осенний семестр:</b> %s\n🌸 <b>Весенний семестр:</b> %s",
		settings.FallStart.Format("02.01.2006"), settings.SpringStart.Format("02.01.2006")))
}

func (c *AdminController) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		c.logger.Error("Failed to send admin reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
