package controller

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"detection-relay/internal/types"
)

// DefaultMaxNameLength предел длины отображаемого имени
const DefaultMaxNameLength = 20

var (
	nameAdjectives = []string{"Smart", "Quick", "Bright", "Cool", "Fast", "Sharp", "Bold", "Clever"}
	nameAnimals    = []string{"Fox", "Eagle", "Tiger", "Wolf", "Bear", "Lion", "Hawk", "Shark"}
)

type registryEntry struct {
	participant types.Participant
	seq         uint64
}

// SessionRegistry авторитетный список участников.
// Не потокобезопасен: единственный писатель это маршрутизатор.
type SessionRegistry struct {
	entries       map[string]*registryEntry
	seq           uint64
	maxNameLength int
	now           func() time.Time
}

// NewSessionRegistry создает реестр
func NewSessionRegistry(maxNameLength int) *SessionRegistry {
	if maxNameLength <= 0 {
		maxNameLength = DefaultMaxNameLength
	}
	return &SessionRegistry{
		entries:       make(map[string]*registryEntry),
		maxNameLength: maxNameLength,
		now:           time.Now,
	}
}

// Join добавляет участника. Повторный вход с тем же id возвращает
// существующего участника без изменений (created=false).
func (r *SessionRegistry) Join(id, requestedName string) (p types.Participant, created bool) {
	if e, ok := r.entries[id]; ok {
		return e.participant, false
	}

	r.seq++
	e := &registryEntry{
		participant: types.Participant{
			ID:       id,
			Name:     r.normalizeName(requestedName),
			IsActive: true,
			JoinedAt: r.now(),
		},
		seq: r.seq,
	}
	r.entries[id] = e

	return e.participant, true
}

// Leave удаляет участника; повторный вызов ничего не делает
func (r *SessionRegistry) Leave(id string) (types.Participant, bool) {
	e, ok := r.entries[id]
	if !ok {
		return types.Participant{}, false
	}
	delete(r.entries, id)
	return e.participant, true
}

// Get возвращает участника
func (r *SessionRegistry) Get(id string) (types.Participant, bool) {
	e, ok := r.entries[id]
	if !ok {
		return types.Participant{}, false
	}
	return e.participant, true
}

// List возвращает копию списка в порядке входа
func (r *SessionRegistry) List() []types.Participant {
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	list := make([]types.Participant, 0, len(entries))
	for _, e := range entries {
		list = append(list, e.participant)
	}
	return list
}

// Count количество участников
func (r *SessionRegistry) Count() int {
	return len(r.entries)
}

func (r *SessionRegistry) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return GenerateName()
	}
	runes := []rune(name)
	if len(runes) > r.maxNameLength {
		name = strings.TrimSpace(string(runes[:r.maxNameLength]))
	}
	return name
}

// GenerateName случайное имя вида SmartFox42
func GenerateName() string {
	return fmt.Sprintf("%s%s%d",
		nameAdjectives[rand.IntN(len(nameAdjectives))],
		nameAnimals[rand.IntN(len(nameAnimals))],
		rand.IntN(100))
}
