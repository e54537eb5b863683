package bot

import (
	"errors"
	"strconv"
	"strings"
)

// Тексты кнопок главного меню.
const (
	buttonShop    = "⚡️ Купить доступ"
	buttonProfile = "👤 Профиль"
	buttonTrial   = "🎁 Пробный период"
	buttonHelp    = "ℹ️ Помощь"
	buttonHome    = "🏠 Главная"
)

// Префиксы callback-данных inline-кнопок.
const (
	prefixBuyPlan = "buy_plan_"
	prefixApprove = "admin_approve_"
	prefixReject  = "admin_reject_"
)

var errBadCallback = errors.New("malformed callback data")

// Command — действие пользователя из текстового сообщения.
type Command int

const (
	CommandUnknown Command = iota
	CommandStart
	CommandShop
	CommandProfile
	CommandTrial
	CommandHelp
)

// ParseCommand распознаёт команду или текст кнопки меню.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " @"); strings.HasPrefix(text, "/") && i > 0 {
		text = text[:i]
	}
	switch text {
	case "/start", buttonHome:
		return CommandStart
	case "/shop", buttonShop:
		return CommandShop
	case "/profile", buttonProfile:
		return CommandProfile
	case "/trial", buttonTrial:
		return CommandTrial
	case "/help", buttonHelp:
		return CommandHelp
	default:
		return CommandUnknown
	}
}

// Action — действие из нажатия inline-кнопки.
type Action int

const (
	ActionUnknown Action = iota
	ActionBuyPlan
	ActionApprove
	ActionReject
)

// ParseCallback разбирает callback-данные вида <префикс><id>.
func ParseCallback(data string) (Action, int64, error) {
	var action Action
	var rest string
	switch {
	case strings.HasPrefix(data, prefixBuyPlan):
		action, rest = ActionBuyPlan, strings.TrimPrefix(data, prefixBuyPlan)
	case strings.HasPrefix(data, prefixApprove):
		action, rest = ActionApprove, strings.TrimPrefix(data, prefixApprove)
	case strings.HasPrefix(data, prefixReject):
		action, rest = ActionReject, strings.TrimPrefix(data, prefixReject)
	default:
		return ActionUnknown, 0, errBadCallback
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return ActionUnknown, 0, errBadCallback
	}
	return action, id, nil
}

func buyPlanData(planID int) string {
	return prefixBuyPlan + strconv.Itoa(planID)
}

func approveData(txID int64) string {
	return prefixApprove + strconv.FormatInt(txID, 10)
}

func rejectData(txID int64) string {
	return prefixReject + strconv.FormatInt(txID, 10)
}
