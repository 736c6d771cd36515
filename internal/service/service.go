package service

import (
	"github.com/smartcity/congestion/internal/domain"
)

// ReadingRepository is re-exported from domain for convenience
type ReadingRepository = domain.ReadingRepository
