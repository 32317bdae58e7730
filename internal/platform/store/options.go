package store

import "pinakes/internal/platform/logger"

// Option customizes store construction before Open dials the database
type Option func(*Store) error

// WithLogger sets the logger used inside the store package
func WithLogger(l logger.Logger) Option {
	return func(s *Store) error {
		s.Log = l
		return nil
	}
}
