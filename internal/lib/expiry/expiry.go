// Package expiry считает новую дату окончания доступа при продлении.
//
// Если доступ ещё действует, новый срок прибавляется к его концу,
// иначе отсчитывается от текущего момента.
package expiry

import "time"

// Day — длительность одних суток тарифа.
const Day = 24 * time.Hour

// Days переводит количество дней тарифа в длительность.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

// NewExpiry возвращает дату окончания после начисления term.
// remote — текущее окончание в панели, nil если записи или даты нет.
func NewExpiry(remote *time.Time, now time.Time, term time.Duration) time.Time {
	if remote == nil || remote.IsZero() {
		return now.Add(term)
	}
	if remote.After(now) {
		return remote.Add(term)
	}
	return now.Add(term)
}

// FromEpoch переводит Unix-время панели во время. nil и 0 означают отсутствие даты.
func FromEpoch(epoch *int64) *time.Time {
	if epoch == nil || *epoch == 0 {
		return nil
	}
	t := time.Unix(*epoch, 0).UTC()
	return &t
}
