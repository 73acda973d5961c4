package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zamaraev97-gif/ai-bot/internal/classifier"
	"github.com/zamaraev97-gif/ai-bot/internal/config"
	"github.com/zamaraev97-gif/ai-bot/internal/dispatch"
	"github.com/zamaraev97-gif/ai-bot/internal/models"
	"github.com/zamaraev97-gif/ai-bot/internal/repository"
	"github.com/zamaraev97-gif/ai-bot/internal/service"
)

// SettingsStore holds the per-chat toggles the bot reads on every turn.
type SettingsStore interface {
	Get(ctx context.Context, chatID int64) (models.Settings, error)
	SetVoiceReply(ctx context.Context, chatID int64, enabled bool) error
	SetAutoRoute(ctx context.Context, chatID int64, enabled bool) error
	Delete(ctx context.Context, chatID int64) error
}

// PhotoStorage re-hosts inbound photos so the vision provider gets a
// stable public URL. May be nil; then the Telegram file URL is used.
type PhotoStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	assistant  *service.Assistant
	plans      *service.PlanService
	settings   SettingsStore
	photos     PhotoStorage
	httpClient *http.Client
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, assistant *service.Assistant, plans *service.PlanService, settings SettingsStore, photos PhotoStorage) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		assistant:  assistant,
		plans:      plans,
		settings:   settings,
		photos:     photos,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				// Turns for the same chat may run concurrently; the
				// store's atomic upserts keep the counters correct.
				go b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Voice != nil || msg.Audio != nil:
		b.handleVoice(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	settings := b.chatSettings(ctx, chatID)

	intent := classifier.IntentChat
	if settings.AutoRoute {
		intent = classifier.Classify(msg.Text)
	}

	if intent == classifier.IntentImage {
		b.serveImage(ctx, chatID, msg.Text)
		return
	}
	b.serveChat(ctx, chatID, msg.Text, settings.VoiceReply)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	b.sendChatAction(chatID, tgbotapi.ChatTyping)

	photo := msg.Photo[len(msg.Photo)-1]
	imageURL, err := b.resolvePhotoURL(ctx, photo.FileID)
	if err != nil {
		b.log.Error("resolve photo", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось получить фото, попробуйте снова.")
		return
	}

	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		caption = "Опиши изображение"
	}

	reply, err := b.assistant.Describe(ctx, chatID, caption, imageURL)
	if err != nil {
		b.replyError(chatID, err, "Не удалось разобрать изображение, попробуйте позже.")
		return
	}
	b.sendText(chatID, reply)
	if b.chatSettings(ctx, chatID).VoiceReply {
		b.maybeSpeak(ctx, chatID, reply)
	}
}

func (b *Bot) handleVoice(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	b.sendChatAction(chatID, tgbotapi.ChatTyping)

	fileID := ""
	switch {
	case msg.Voice != nil:
		fileID = msg.Voice.FileID
	case msg.Audio != nil:
		fileID = msg.Audio.FileID
	}

	audio, _, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download voice", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось получить голосовое сообщение.")
		return
	}

	text, err := b.assistant.Transcribe(ctx, audio)
	if err != nil {
		b.replyError(chatID, err, "Не удалось распознать голосовое сообщение.")
		return
	}

	// A transcribed voice message is always a chat turn.
	b.serveChat(ctx, chatID, text, b.chatSettings(ctx, chatID).VoiceReply)
}

func (b *Bot) serveChat(ctx context.Context, chatID int64, text string, voiceReply bool) {
	b.sendChatAction(chatID, tgbotapi.ChatTyping)

	reply, err := b.assistant.Chat(ctx, chatID, text)
	if err != nil {
		b.replyError(chatID, err, "Не удалось получить ответ, попробуйте позже.")
		return
	}
	b.sendText(chatID, reply)
	if voiceReply {
		b.maybeSpeak(ctx, chatID, reply)
	}
}

func (b *Bot) serveImage(ctx context.Context, chatID int64, prompt string) {
	b.sendChatAction(chatID, tgbotapi.ChatUploadPhoto)

	image, err := b.assistant.GenerateImage(ctx, chatID, prompt)
	if err != nil {
		b.replyError(chatID, err, "Не удалось сгенерировать изображение, попробуйте позже.")
		return
	}

	var cfg tgbotapi.PhotoConfig
	if image.Inline() {
		cfg = tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: image.Bytes})
	} else {
		cfg = tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(image.URL))
	}
	if _, err := b.api.Send(cfg); err != nil {
		b.log.Error("send image", "chat_id", chatID, "err", err)
	}
}

// maybeSpeak attempts the voice-reply sub-dispatch. Its failure is
// swallowed: the text reply already went out.
func (b *Bot) maybeSpeak(ctx context.Context, chatID int64, text string) {
	b.sendChatAction(chatID, tgbotapi.ChatRecordVoice)
	audio, err := b.assistant.Speak(ctx, text)
	if err != nil {
		b.log.Warn("voice reply failed", "chat_id", chatID, "err", err)
		return
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio})
	if _, err := b.api.Send(voice); err != nil {
		b.log.Warn("send voice reply", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.sendText(chatID, startMessage)
	case "help":
		b.sendText(chatID, helpMessage)
	case "buy":
		b.handleBuy(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID)
	case "voiceon":
		b.setVoiceReply(ctx, chatID, true)
	case "voiceoff":
		b.setVoiceReply(ctx, chatID, false)
	case "auto":
		b.handleAuto(ctx, chatID, args)
	case "imagine":
		if args == "" {
			b.sendText(chatID, "Формат: /imagine <описание изображения>")
			return
		}
		b.serveImage(ctx, chatID, args)
	case "redeem":
		b.handleRedeem(ctx, chatID, args)
	case "wipe":
		b.handleWipe(ctx, chatID)
	case "grant":
		b.handleGrant(ctx, msg, args)
	case "genredeem":
		b.handleGenRedeem(ctx, msg, args)
	case "revoke":
		b.handleRevoke(ctx, msg, args)
	case "reset":
		b.handleReset(ctx, msg, args)
	default:
		b.sendText(chatID, "Неизвестная команда. Список команд: /help")
	}
}

func (b *Bot) handleBuy(ctx context.Context, chatID int64) {
	info, err := b.plans.Get(ctx, chatID)
	if err != nil {
		b.log.Error("get plan", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось получить информацию о тарифе.")
		return
	}
	plan := info.Effective(time.Now())
	text := fmt.Sprintf(
		"Ваш тариф: %s\n\nТарифы:\n• free — %d сообщений и %d изображения в день\n• standard — без лимита сообщений, %d изображений в месяц\n• premium — без лимитов\n\nАктивируйте код командой /redeem <код>.",
		plan, b.cfg.FreeDailyText, b.cfg.FreeDailyImages, b.cfg.StandardMonthlyImages,
	)
	if info.ExpiresAt != nil && plan != models.PlanFree {
		text += fmt.Sprintf("\nДействует до %s.", info.ExpiresAt.UTC().Format("02.01.2006"))
	}
	b.sendText(chatID, text)
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	records, err := b.assistant.History(ctx, chatID, 10)
	if err != nil {
		b.log.Error("history", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось получить историю.")
		return
	}
	if len(records) == 0 {
		b.sendText(chatID, "История пуста.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние запросы (новые сверху):\n")
	for _, rec := range records {
		prompt := rec.Prompt
		if runes := []rune(prompt); len(runes) > 80 {
			prompt = string(runes[:80]) + "…"
		}
		fmt.Fprintf(&sb, "• [%s] %s — %s\n", rec.Kind, rec.CreatedAt.Format("02.01 15:04"), prompt)
	}
	b.sendText(chatID, sb.String())
}

func (b *Bot) setVoiceReply(ctx context.Context, chatID int64, enabled bool) {
	if err := b.settings.SetVoiceReply(ctx, chatID, enabled); err != nil {
		b.log.Error("set voice reply", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось сохранить настройку.")
		return
	}
	if enabled {
		b.sendText(chatID, "Голосовые ответы включены.")
	} else {
		b.sendText(chatID, "Голосовые ответы выключены.")
	}
}

func (b *Bot) handleAuto(ctx context.Context, chatID int64, args string) {
	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		b.sendText(chatID, "Формат: /auto on|off")
		return
	}
	if err := b.settings.SetAutoRoute(ctx, chatID, enabled); err != nil {
		b.log.Error("set auto route", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось сохранить настройку.")
		return
	}
	if enabled {
		b.sendText(chatID, "Автороутинг включен: фразы вида «нарисуй …» будут генерировать изображения.")
	} else {
		b.sendText(chatID, "Автороутинг выключен: изображения только через /imagine.")
	}
}

func (b *Bot) handleRedeem(ctx context.Context, chatID int64, code string) {
	if code == "" {
		b.sendText(chatID, "Формат: /redeem <код>")
		return
	}
	rc, err := b.plans.Redeem(ctx, chatID, code)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeNotFound):
			b.sendText(chatID, "Код не найден.")
		case errors.Is(err, repository.ErrCodeUsed):
			b.sendText(chatID, "Этот код уже использован.")
		default:
			b.log.Error("redeem", "chat_id", chatID, "err", err)
			b.sendText(chatID, "Не удалось активировать код, попробуйте позже.")
		}
		return
	}
	b.sendText(chatID, fmt.Sprintf("Код активирован! Тариф %s на %d дней.", rc.Plan, rc.Days))
}

func (b *Bot) handleWipe(ctx context.Context, chatID int64) {
	if err := b.assistant.Wipe(ctx, chatID); err != nil {
		b.log.Error("wipe records", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Не удалось удалить данные, попробуйте позже.")
		return
	}
	if err := b.plans.Wipe(ctx, chatID); err != nil {
		b.log.Error("wipe plan", "chat_id", chatID, "err", err)
	}
	if err := b.settings.Delete(ctx, chatID); err != nil {
		b.log.Error("wipe settings", "chat_id", chatID, "err", err)
	}
	b.sendText(chatID, "Все данные этого чата удалены.")
}

func (b *Bot) handleGrant(ctx context.Context, msg *tgbotapi.Message, args string) {
	if !b.requireAdmin(msg) {
		return
	}
	chatID := msg.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 2 {
		b.sendText(chatID, "Формат: /grant <plan> <days> [chat_id]")
		return
	}
	plan, err := models.ParsePlan(fields[0])
	if err != nil {
		b.sendText(chatID, "Неизвестный тариф. Допустимо: free, standard, premium.")
		return
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days < 0 {
		b.sendText(chatID, "Количество дней должно быть неотрицательным числом.")
		return
	}
	target := chatID
	if len(fields) > 2 {
		target, err = strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			b.sendText(chatID, "Неверный chat_id.")
			return
		}
	}
	if err := b.plans.Grant(ctx, target, plan, days); err != nil {
		b.log.Error("grant", "target", target, "err", err)
		b.sendText(chatID, "Не удалось выдать тариф.")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Чату %d выдан тариф %s на %d дней.", target, plan, days))
}

func (b *Bot) handleGenRedeem(ctx context.Context, msg *tgbotapi.Message, args string) {
	if !b.requireAdmin(msg) {
		return
	}
	chatID := msg.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 2 {
		b.sendText(chatID, "Формат: /genredeem <plan> <days> [count]")
		return
	}
	plan, err := models.ParsePlan(fields[0])
	if err != nil {
		b.sendText(chatID, "Неизвестный тариф. Допустимо: free, standard, premium.")
		return
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days < 0 {
		b.sendText(chatID, "Количество дней должно быть неотрицательным числом.")
		return
	}
	count := 1
	if len(fields) > 2 {
		count, err = strconv.Atoi(fields[2])
		if err != nil || count <= 0 {
			b.sendText(chatID, "Количество кодов должно быть положительным числом.")
			return
		}
	}
	codes, err := b.plans.GenerateCodes(ctx, plan, days, count)
	if err != nil {
		b.log.Error("generate codes", "err", err)
		b.sendText(chatID, "Не удалось создать коды.")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Коды (%s, %d дней):\n%s", plan, days, strings.Join(codes, "\n")))
}

func (b *Bot) handleRevoke(ctx context.Context, msg *tgbotapi.Message, args string) {
	if !b.requireAdmin(msg) {
		return
	}
	chatID := msg.Chat.ID
	target, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendText(chatID, "Формат: /revoke <chat_id>")
		return
	}
	if err := b.plans.Revoke(ctx, target); err != nil {
		b.log.Error("revoke", "target", target, "err", err)
		b.sendText(chatID, "Не удалось отозвать тариф.")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Чат %d переведен на тариф free.", target))
}

func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message, args string) {
	if !b.requireAdmin(msg) {
		return
	}
	chatID := msg.Chat.ID
	target := chatID
	if args != "" {
		var err error
		target, err = strconv.ParseInt(args, 10, 64)
		if err != nil {
			b.sendText(chatID, "Формат: /reset [chat_id]")
			return
		}
	}
	if err := b.assistant.ResetToday(ctx, target); err != nil {
		b.log.Error("reset usage", "target", target, "err", err)
		b.sendText(chatID, "Не удалось сбросить счетчики.")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Счетчики чата %d за сегодня сброшены.", target))
}

func (b *Bot) requireAdmin(msg *tgbotapi.Message) bool {
	if b.cfg.AdminChatID != 0 && msg.From != nil && msg.From.ID == b.cfg.AdminChatID {
		return true
	}
	b.sendText(msg.Chat.ID, "Команда доступна только администратору.")
	return false
}

// replyError maps errors to a single user-facing message. Quota denials
// and redemption errors are specific; provider failures surface one
// concise diagnostic while the full detail stays in the logs.
func (b *Bot) replyError(chatID int64, err error, fallback string) {
	var quota *service.QuotaError
	if errors.As(err, &quota) {
		b.sendText(chatID, quota.Reason)
		return
	}
	var agg *dispatch.AggregateError
	if errors.As(err, &agg) {
		first := agg.First()
		b.log.Error("all candidates failed", "chat_id", chatID,
			"capability", agg.Capability, "failed", len(agg.Failures),
			"first_model", first.Model, "err", err)
		b.sendText(chatID, fallback)
		return
	}
	if errors.Is(err, dispatch.ErrNoCandidates) {
		b.log.Error("dispatch misconfigured", "chat_id", chatID, "err", err)
		b.sendText(chatID, fallback)
		return
	}
	b.log.Error("turn failed", "chat_id", chatID, "err", err)
	b.sendText(chatID, fallback)
}

func (b *Bot) chatSettings(ctx context.Context, chatID int64) models.Settings {
	settings, err := b.settings.Get(ctx, chatID)
	if err != nil {
		b.log.Error("get settings", "chat_id", chatID, "err", err)
		return models.Settings{ChatID: chatID, AutoRoute: true}
	}
	return settings
}

// resolvePhotoURL re-hosts the photo when storage is configured so the
// vision provider gets a stable public URL; otherwise the Telegram file
// URL is used directly.
func (b *Bot) resolvePhotoURL(ctx context.Context, fileID string) (string, error) {
	fileURL, err := b.fileURL(fileID)
	if err != nil {
		return "", err
	}
	if b.photos == nil {
		return fileURL, nil
	}
	data, contentType, err := b.downloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	hosted, err := b.photos.Upload(ctx, data, contentType)
	if err != nil {
		b.log.Warn("photo re-host failed, using telegram url", "err", err)
		return fileURL, nil
	}
	return hosted, nil
}

func (b *Bot) fileURL(fileID string) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("file path empty")
	}
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath), nil
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := b.fileURL(fileID)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" && len(body) > 0 {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) sendChatAction(chatID int64, action string) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		b.log.Warn("send chat action", "chat_id", chatID, "err", err)
	}
}

const startMessage = `Привет! Я ассистент на базе LLM.

Напишите текст, пришлите фото с подписью или голосовое сообщение.
Фразы вида «нарисуй кота» генерируют изображение.

Команды: /help`

const helpMessage = `Команды:
/imagine <описание> — сгенерировать изображение
/history — последние запросы
/voiceon, /voiceoff — голосовые ответы
/auto on|off — автороутинг «нарисуй …» в генерацию изображений
/buy — тарифы и лимиты
/redeem <код> — активировать код
/wipe — удалить все данные этого чата`
