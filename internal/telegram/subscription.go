package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type memberChecker interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// missingChannels returns the force-subscribe channels userID has not joined.
// A failed lookup counts as not joined.
func (b *Bot) missingChannels(userID int64) []string {
	var missing []string
	for _, channel := range b.cfg.ForceSubChannels {
		joined, err := isMember(b.members, channel, userID)
		if err != nil {
			b.log.Warn("check subscription", "channel", channel, "user_id", userID, "err", err)
		}
		if !joined {
			missing = append(missing, channel)
		}
	}
	return missing
}

func isMember(api memberChecker, channel string, userID int64) (bool, error) {
	cfg := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = "@" + strings.TrimPrefix(channel, "@")
	}

	member, err := api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: cfg})
	if err != nil {
		return false, err
	}

	switch strings.ToLower(member.Status) {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	default:
		return false, nil
	}
}

// ensureJoined lets admins and subscribed users through. Everyone else gets
// the list of channels to join and a button to check again.
func (b *Bot) ensureJoined(userID, chatID int64) bool {
	if len(b.cfg.ForceSubChannels) == 0 || b.cfg.IsAdmin(userID) {
		return true
	}
	missing := b.missingChannels(userID)
	if len(missing) == 0 {
		return true
	}
	b.sendSubscriptionReminder(chatID, missing)
	return false
}

func (b *Bot) sendSubscriptionReminder(chatID int64, missing []string) {
	msg := tgbotapi.NewMessage(chatID, "Please join our channels to use this bot, then press the button below.")
	msg.ReplyMarkup = subscriptionKeyboard(missing)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send subscription reminder", "err", err)
	}
}

func subscriptionKeyboard(missing []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, channel := range missing {
		if _, err := strconv.ParseInt(channel, 10, 64); err == nil {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(fmt.Sprintf("Join @%s", channel), "https://t.me/"+channel),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("I've joined", cbCheckSubscription),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
