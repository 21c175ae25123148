// Package lock содержит примитивы сериализации изменений одного заказа.
package lock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed выдаёт мьютекс на ключ (ID заказа, токен сессии).
// Записи удаляются, когда их никто не держит.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock блокирует ключ и возвращает функцию разблокировки.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Len возвращает число ключей, которые сейчас кто-то держит или ждёт.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
