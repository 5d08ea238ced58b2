package commands

import (
	"errors"
	"sync"
	"time"
)

// ErrOnCooldown is returned by Registry.Run when a command is rejected
// because its per-user or global window has not elapsed.
var ErrOnCooldown = errors.New("command on cooldown")

// CooldownStore tracks the last successful invocation of each command,
// globally and per user. Zero durations disable the corresponding window.
type CooldownStore struct {
	mu          sync.Mutex
	userWindow  time.Duration
	globalWin   time.Duration
	lastGlobal  map[string]time.Time
	lastPerUser map[cooldownKey]time.Time
	now         func() time.Time
}

type cooldownKey struct {
	command string
	userID  string
}

// NewCooldownStore builds a store with default per-user and global windows.
// Commands may override either via Command.UserCooldown / GlobalCooldown.
func NewCooldownStore(userWindow, globalWindow time.Duration) *CooldownStore {
	return &CooldownStore{
		userWindow:  userWindow,
		globalWin:   globalWindow,
		lastGlobal:  make(map[string]time.Time),
		lastPerUser: make(map[cooldownKey]time.Time),
		now:         time.Now,
	}
}

// Ready reports whether command may run for userID given the effective
// windows, and the remaining wait when it may not. Negative window values
// fall back to the store defaults; zero disables the window.
func (s *CooldownStore) Ready(command, userID string, userWindow, globalWindow time.Duration) (time.Duration, bool) {
	if s == nil {
		return 0, true
	}
	if userWindow < 0 {
		userWindow = s.userWindow
	}
	if globalWindow < 0 {
		globalWindow = s.globalWin
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	if globalWindow > 0 {
		if last, ok := s.lastGlobal[command]; ok {
			if rem := globalWindow - now.Sub(last); rem > 0 {
				return rem, false
			}
		}
	}
	if userWindow > 0 && userID != "" {
		if last, ok := s.lastPerUser[cooldownKey{command, userID}]; ok {
			if rem := userWindow - now.Sub(last); rem > 0 {
				return rem, false
			}
		}
	}
	return 0, true
}

// Mark records a successful invocation of command by userID.
func (s *CooldownStore) Mark(command, userID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastGlobal[command] = now
	if userID != "" {
		s.lastPerUser[cooldownKey{command, userID}] = now
	}
}

// Reset clears all recorded invocations.
func (s *CooldownStore) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGlobal = make(map[string]time.Time)
	s.lastPerUser = make(map[cooldownKey]time.Time)
}
