package tracker

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const sessionKey = "session_id"

// Sessions hands out the stable per-profile session identifier.
type Sessions struct {
	storage Storage
	logger  *slog.Logger
	newID   func() string

	mu       sync.Mutex
	fallback string
}

func NewSessions(storage Storage, logger *slog.Logger) *Sessions {
	return &Sessions{
		storage: storage,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
}

// ID returns the persisted session identifier, creating it on first use.
// When storage is unavailable it returns an identifier that lives only as long
// as this process.
func (s *Sessions) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.storage.Get(sessionKey)
	if err == nil && id != "" {
		return id
	}
	if err == nil {
		id = s.fallback
		if id == "" {
			id = s.newID()
		}
		if err = s.storage.Set(sessionKey, id); err == nil {
			s.fallback = ""
			return id
		}
	}

	if s.fallback == "" {
		if id == "" {
			id = s.newID()
		}
		s.fallback = id
		s.logger.Debug("session storage unavailable, using in-memory session id", "error", err)
	}
	return s.fallback
}
