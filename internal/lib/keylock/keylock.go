// Package keylock предоставляет мьютекс на ключ: операции над одним
// пользователем выполняются по очереди, над разными — параллельно.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker хранит мьютексы только для ключей, которые сейчас заняты.
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

// New создаёт пустой Locker.
func New() *Locker {
	return &Locker{locks: make(map[int64]*entry)}
}

// Lock захватывает блокировку для key и возвращает функцию освобождения.
func (l *Locker) Lock(key int64) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len возвращает число ключей, для которых есть ожидающие или держатели.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
