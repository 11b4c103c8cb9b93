package bans

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

type BanType string

const (
	BanTypeIP       BanType = "ip"
	BanTypeNickname BanType = "nickname"
)

type Ban struct {
	Type      BanType   `json:"type"`
	IP        string    `json:"ip,omitempty"`
	Nickname  string    `json:"nickname,omitempty"`
	Reason    string    `json:"reason"`
	BannedBy  string    `json:"banned_by"`
	BannedAt  time.Time `json:"banned_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Permanent bool      `json:"permanent"`
}

func (b *Ban) Expired(now time.Time) bool {
	return !b.Permanent && now.After(b.ExpiresAt)
}

func (b *Ban) key() string {
	if b.Type == BanTypeNickname {
		return foldNickname(b.Nickname)
	}
	return b.IP
}

// Manager keeps IP and nickname bans in memory and persists them as a JSON
// array. Nickname matching is case-insensitive.
type Manager struct {
	ipBans   map[string]*Ban
	nickBans map[string]*Ban
	filePath string
	now      func() time.Time
	mu       sync.RWMutex
}

var fold = cases.Fold()

func foldNickname(name string) string {
	return fold.String(name)
}

func NewManager(filePath string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bans directory: %w", err)
	}

	return &Manager{
		ipBans:   make(map[string]*Ban),
		nickBans: make(map[string]*Ban),
		filePath: filePath,
		now:      time.Now,
	}, nil
}

// Load replaces the in-memory bans with the file contents, skipping expired
// entries. A missing file is not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read bans file: %w", err)
	}

	var list []*Ban
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse bans file: %w", err)
	}

	m.ipBans = make(map[string]*Ban)
	m.nickBans = make(map[string]*Ban)
	now := m.now()
	for _, ban := range list {
		if ban.Expired(now) {
			continue
		}
		if ban.Type == "" {
			ban.Type = BanTypeIP
		}
		m.put(ban)
	}

	return nil
}

func (m *Manager) put(ban *Ban) {
	switch ban.Type {
	case BanTypeIP:
		if ban.IP != "" {
			m.ipBans[ban.key()] = ban
		}
	case BanTypeNickname:
		if ban.Nickname != "" {
			m.nickBans[ban.key()] = ban
		}
	}
}

func lookup(bans map[string]*Ban, key string, now time.Time) (bool, *Ban) {
	ban, ok := bans[key]
	if !ok || ban.Expired(now) {
		return false, nil
	}
	return true, ban
}

func (m *Manager) IsBanned(ip string) (bool, *Ban) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.ipBans, ip, m.now())
}

func (m *Manager) IsBannedByName(name string) (bool, *Ban) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.nickBans, foldNickname(name), m.now())
}

func (m *Manager) newBan(typ BanType, reason, bannedBy string, duration time.Duration) *Ban {
	now := m.now()
	ban := &Ban{
		Type:      typ,
		Reason:    reason,
		BannedBy:  bannedBy,
		BannedAt:  now,
		Permanent: duration == 0,
	}
	if duration > 0 {
		ban.ExpiresAt = now.Add(duration)
	}
	return ban
}

// AddBan bans an address. A zero duration makes the ban permanent.
func (m *Manager) AddBan(ip, reason, bannedBy string, duration time.Duration) error {
	if ip == "" {
		return errors.New("ip must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ban := m.newBan(BanTypeIP, reason, bannedBy, duration)
	ban.IP = ip
	m.put(ban)
	return m.saveLocked()
}

func (m *Manager) AddBanByName(name, reason, bannedBy string, duration time.Duration) error {
	if name == "" {
		return errors.New("nickname must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ban := m.newBan(BanTypeNickname, reason, bannedBy, duration)
	ban.Nickname = name
	m.put(ban)
	return m.saveLocked()
}

func (m *Manager) RemoveBan(ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.ipBans, ip)
	return m.saveLocked()
}

func (m *Manager) RemoveBanByName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.nickBans, foldNickname(name))
	return m.saveLocked()
}

// List returns the active bans ordered by ban time.
func (m *Manager) List() []*Ban {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]*Ban, 0, len(m.ipBans)+len(m.nickBans))
	for _, group := range []map[string]*Ban{m.ipBans, m.nickBans} {
		for _, ban := range group {
			if !ban.Expired(now) {
				out = append(out, ban)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BannedAt.Before(out[j].BannedAt)
	})
	return out
}

// Cleanup drops expired bans and rewrites the file.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, group := range []map[string]*Ban{m.ipBans, m.nickBans} {
		for key, ban := range group {
			if ban.Expired(now) {
				delete(group, key)
			}
		}
	}
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	list := make([]*Ban, 0, len(m.ipBans)+len(m.nickBans))
	for _, ban := range m.ipBans {
		list = append(list, ban)
	}
	for _, ban := range m.nickBans {
		list = append(list, ban)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Type != list[j].Type {
			return list[i].Type < list[j].Type
		}
		return list[i].key() < list[j].key()
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bans: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write bans file: %w", err)
	}

	return nil
}
