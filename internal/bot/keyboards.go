package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/vpn-shop/internal/models"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonShop),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonProfile),
			tgbotapi.NewKeyboardButton(buttonTrial),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonHelp),
			tgbotapi.NewKeyboardButton(buttonHome),
		),
	)
}

// plansKeyboard раскладывает тарифы по две кнопки в ряд.
func plansKeyboard(plans []*models.Plan) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, plan := range plans {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(planLabel(plan), buyPlanData(plan.ID)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func planLabel(plan *models.Plan) string {
	if plan.IsTrial() {
		return plan.Name + " — БЕСПЛАТНО"
	}
	return fmt.Sprintf("%s — %d₽", plan.Name, plan.Price)
}

func reviewKeyboard(txID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", approveData(txID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", rejectData(txID)),
		),
	)
}
