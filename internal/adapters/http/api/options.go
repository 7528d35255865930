package api

import "github.com/okian/gubs/pkg/logger"

// Option configures a Server.
type Option func(*Server)

// WithUIDHeader sets the header that carries the caller identity.
func WithUIDHeader(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.uidHeader = name
		}
	}
}

// WithRateLimit enables per-user token buckets. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rps = rps
		s.burst = burst
	}
}

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}
