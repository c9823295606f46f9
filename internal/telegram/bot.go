package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGRenameBot/internal/config"
	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/progress"
	"github.com/digkill/TGRenameBot/internal/renamer"
	"github.com/digkill/TGRenameBot/internal/service"
)

const historyLimit = 10

var _ renamer.Transport = (*Transport)(nil)

type Bot struct {
	cfg       config.Config
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	machine   *renamer.Machine
	accounts  *service.AccountService
	plans     *service.PlanService
	transfers *service.TransferService
	members   memberChecker
	handlers  sync.WaitGroup
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, machine *renamer.Machine, accounts *service.AccountService, plans *service.PlanService, transfers *service.TransferService) *Bot {
	return &Bot{
		cfg:       cfg,
		api:       api,
		log:       log,
		machine:   machine,
		accounts:  accounts,
		plans:     plans,
		transfers: transfers,
		members:   api,
	}
}

// Run polls for updates until ctx is cancelled. Every update is handled on
// its own goroutine; ordering per user comes from the machine's user lock.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.handlers.Wait()
				return nil
			}
			b.handlers.Add(1)
			go func() {
				defer b.handlers.Done()
				b.handleUpdate(ctx, update)
			}()
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.handlers.Wait()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	if !b.ensureJoined(msg.From.ID, msg.Chat.ID) {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	in, ok := inputFromMessage(msg)
	if !ok {
		b.log.Debug("unsupported message", "user_id", in.UserID, "chat_id", in.ChatID)
	}
	b.machine.Handle(ctx, in)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if kind, ok := commandInputs[msg.Command()]; ok {
		b.machine.Handle(ctx, renamer.Input{Kind: kind, UserID: userID, ChatID: chatID, At: msg.Time().UTC()})
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.sendText(chatID, helpText(msg.From.FirstName))
	case "about":
		b.handleAbout(chatID)
	case "myplan":
		b.handleMyPlan(ctx, userID, chatID)
	case "upgrade":
		b.handleUpgrade(ctx, chatID)
	case "history":
		b.handleHistory(ctx, userID, chatID)
	case "view_thumb":
		b.handleViewThumbnail(ctx, userID, chatID)
	case "clear_thumb":
		if err := b.machine.ClearDefaultThumbnail(ctx, userID); err != nil {
			b.log.Error("clear default thumbnail", "user_id", userID, "err", err)
			b.sendText(chatID, "Could not clear your thumbnail, please try again later.")
			return
		}
		b.sendText(chatID, "Default thumbnail removed.")
	case "view_caption":
		b.handleViewCaption(ctx, userID, chatID)
	case "clear_caption":
		if err := b.machine.ClearDefaultCaption(ctx, userID); err != nil {
			b.log.Error("clear default caption", "user_id", userID, "err", err)
			b.sendText(chatID, "Could not clear your caption, please try again later.")
			return
		}
		b.sendText(chatID, "Default caption removed.")
	case "stats":
		if !b.cfg.IsAdmin(userID) {
			b.sendText(chatID, unknownCommand)
			return
		}
		b.handleStats(ctx, chatID)
	case "ping":
		if !b.cfg.IsAdmin(userID) {
			b.sendText(chatID, unknownCommand)
			return
		}
		b.handlePing(chatID)
	default:
		b.sendText(chatID, unknownCommand)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	if cb.Data == cbCheckSubscription {
		missing := b.missingChannels(cb.From.ID)
		if len(missing) > 0 {
			b.answerCallback(cb.ID, "You haven't joined all channels yet.")
			return
		}
		b.answerCallback(cb.ID, "Thanks for joining!")
		b.sendText(chatID, helpText(cb.From.FirstName))
		return
	}

	kind, ok := callbackInputs[cb.Data]
	if !ok {
		b.answerCallback(cb.ID, "Unknown action")
		return
	}
	b.answerCallback(cb.ID, "")
	if !b.ensureJoined(cb.From.ID, chatID) {
		return
	}
	b.machine.Handle(ctx, renamer.Input{Kind: kind, UserID: cb.From.ID, ChatID: chatID, At: time.Now().UTC()})
}

func (b *Bot) handleMyPlan(ctx context.Context, userID, chatID int64) {
	acc, err := b.accounts.Ensure(ctx, userID)
	if err != nil {
		b.log.Error("ensure account myplan", "user_id", userID, "err", err)
		b.sendText(chatID, "Could not load your plan, please try again later.")
		return
	}
	plan, err := b.plans.Get(ctx, acc.Plan)
	if err != nil {
		b.log.Error("get plan", "tier", acc.Plan, "err", err)
		plan = models.Plan{Tier: acc.Plan, Title: string(acc.Plan)}
	}
	b.sendText(chatID, planText(acc, plan))
}

func (b *Bot) handleUpgrade(ctx context.Context, chatID int64) {
	plans, err := b.plans.Upgrades(ctx)
	if err != nil {
		b.log.Error("list plans", "err", err)
		b.sendText(chatID, "Could not load plans, please try again later.")
		return
	}
	b.sendText(chatID, upgradeText(plans, b.cfg.SupportURL))
}

func (b *Bot) handleHistory(ctx context.Context, userID, chatID int64) {
	logs, err := b.transfers.History(ctx, userID, historyLimit)
	if err != nil {
		b.log.Error("transfer history", "user_id", userID, "err", err)
		b.sendText(chatID, "Could not load your history, please try again later.")
		return
	}
	b.sendText(chatID, historyText(logs))
}

func (b *Bot) handleViewThumbnail(ctx context.Context, userID, chatID int64) {
	acc, err := b.accounts.Ensure(ctx, userID)
	if err != nil {
		b.log.Error("ensure account view_thumb", "user_id", userID, "err", err)
		b.sendText(chatID, "Could not load your thumbnail, please try again later.")
		return
	}
	if acc.DefaultThumbnailID == "" {
		b.sendText(chatID, "You have no default thumbnail. Use /set_thumb to add one.")
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(acc.DefaultThumbnailID))
	photo.Caption = "Your default thumbnail. /clear_thumb removes it."
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("send thumbnail", "user_id", userID, "err", err)
		b.sendText(chatID, "Could not show your thumbnail. Set it again with /set_thumb.")
	}
}

func (b *Bot) handleViewCaption(ctx context.Context, userID, chatID int64) {
	acc, err := b.accounts.Ensure(ctx, userID)
	if err != nil {
		b.log.Error("ensure account view_caption", "user_id", userID, "err", err)
		b.sendText(chatID, "Could not load your caption, please try again later.")
		return
	}
	if acc.DefaultCaption == "" {
		b.sendText(chatID, "You have no default caption. Use /set_caption to add one.")
		return
	}
	b.sendText(chatID, "Your default caption:\n\n"+acc.DefaultCaption)
}

func (b *Bot) handleAbout(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, aboutText(b.api.Self.UserName))
	msg.DisableWebPagePreview = true
	if kb, ok := aboutKeyboard(b.cfg.UpdateChannelURL, b.cfg.SupportURL); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send about", "err", err)
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	accounts, active, err := b.accounts.Stats(ctx)
	if err != nil {
		b.log.Error("account stats", "err", err)
		b.sendText(chatID, "Could not load stats.")
		return
	}
	b.sendText(chatID, fmt.Sprintf("Total users: %d\nActive operations: %d\nTransfers running on this instance: %d",
		accounts, active, b.machine.Running()))
}

func (b *Bot) handlePing(chatID int64) {
	start := time.Now()
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, "Pong!"))
	if err != nil {
		b.log.Error("send ping", "err", err)
		return
	}
	text := fmt.Sprintf("Pong! %d ms", time.Since(start).Milliseconds())
	if _, err := b.api.Request(tgbotapi.NewEditMessageText(chatID, sent.MessageID, text)); err != nil {
		b.log.Error("edit ping", "err", err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

const unknownCommand = "Unknown command. Send /help to see what I can do."

func helpText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`Hi, %s!

Send me a document, video, audio or photo and I will send it back under a new name, optionally with your own thumbnail and caption.

Commands:
/myplan - your plan and today's usage
/upgrade - available plans
/history - your recent transfers
/set_thumb, /view_thumb, /clear_thumb - default thumbnail
/set_caption, /view_caption, /clear_caption - default caption
/cancel - cancel the current file
/about - about this bot`, name)
}

func aboutText(username string) string {
	bot := "this bot"
	if username != "" {
		bot = "@" + username
	}
	return fmt.Sprintf("%s renames documents, videos, audio files and photos.\n\nSend a file, pick a new name and optionally a thumbnail and caption, and the file comes back under its new name.", bot)
}

// aboutKeyboard links the update channel and support group, whichever are set.
func aboutKeyboard(updatesURL, supportURL string) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if updatesURL != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("Update Channel", updatesURL))
	}
	if supportURL != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("Support Group", supportURL))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func planText(acc *models.Account, plan models.Plan) string {
	title := plan.Title
	if title == "" {
		title = string(acc.Plan)
	}
	expires := "never"
	if acc.PlanExpiresAt != nil {
		expires = acc.PlanExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return fmt.Sprintf("Plan: %s\nDaily limit: %s\nUploaded today: %s\nRemaining today: %s\nParallel transfers: %d\nExpires: %s",
		title,
		progress.HumanBytes(float64(acc.DailyLimitBytes)),
		progress.HumanBytes(float64(acc.DailyUploadedBytes)),
		progress.HumanBytes(float64(acc.RemainingBytes())),
		acc.ParallelLimit,
		expires,
	)
}

func upgradeText(plans []models.Plan, supportURL string) string {
	if len(plans) == 0 {
		return "No upgrades are available right now."
	}
	var sb strings.Builder
	sb.WriteString("Available plans:\n")
	for _, p := range plans {
		fmt.Fprintf(&sb, "\n%s: %s per day, %d parallel transfers", p.Title, progress.HumanBytes(float64(p.DailyLimitBytes)), p.ParallelLimit)
		if p.Price != "" {
			fmt.Fprintf(&sb, ", %s", p.Price)
		}
	}
	if supportURL != "" {
		fmt.Fprintf(&sb, "\n\nTo upgrade, contact %s", supportURL)
	}
	return sb.String()
}

func historyText(logs []models.TransferLog) string {
	if len(logs) == 0 {
		return "You have no transfers yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent transfers:\n")
	for _, l := range logs {
		fmt.Fprintf(&sb, "\n%s %s -> %s (%s, %s)",
			l.CreatedAt.UTC().Format("2006-01-02 15:04"), l.OriginalName, l.NewName,
			progress.HumanBytes(float64(l.SizeBytes)), l.Status)
	}
	return sb.String()
}
