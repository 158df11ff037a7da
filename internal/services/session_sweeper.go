package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

// SessionSweeper drops idle wizard sessions in the background. Drafts are
// deliberately unpersisted, so expiry means the visitor starts over.
type SessionSweeper struct {
	sessions *SessionService
	logger   *logrus.Logger
	stopCh   chan struct{}
	interval time.Duration
}

// NewSessionSweeper creates a new session sweeper
func NewSessionSweeper(sessions *SessionService, logger *logrus.Logger, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		logger:   logger,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

// Start begins the background sweep job
func (s *SessionSweeper) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting session sweeper")
	go s.run()
}

// Stop stops the background sweep job
func (s *SessionSweeper) Stop() {
	s.logger.Info("Stopping session sweeper")
	close(s.stopCh)
}

func (s *SessionSweeper) run() {
	// Run immediately on start
	s.sessions.SweepExpired()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sessions.SweepExpired()
		case <-s.stopCh:
			s.logger.Info("Session sweeper stopped")
			return
		}
	}
}
