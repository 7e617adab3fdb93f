// Package engine holds the presence decision and aggregation logic. It
// performs no I/O: callers hand it already-scoped collections and persist
// whatever records it returns verbatim.
package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/calendar"
	"fieldline/internal/config"
)

var (
	ErrMissionConflict   = errors.New("mission conflict: agent already has an active mission")
	ErrMissionNotActive  = errors.New("mission not active")
	ErrInvalidPermission = errors.New("invalid permission")
	ErrPermissionDecided = errors.New("permission already decided")
	ErrInvalidActivity   = errors.New("invalid activity")
)

// DefaultDuplicateInterval applies when no config is supplied.
const DefaultDuplicateInterval = 5 * time.Minute

// MaxClockSkew bounds how far past the engine clock a check-in timestamp
// may be while its mission is still open.
const MaxClockSkew = 5 * time.Minute

type Engine struct {
	Now      func() time.Time
	NewID    func() string
	Calendar calendar.Policy

	// DuplicateInterval of zero disables the duplicate guard.
	DuplicateInterval time.Duration
	// MaxAccuracyMeters of zero disables the accuracy gate.
	MaxAccuracyMeters float64
}

// New wires an engine from config. A nil config yields the defaults.
func New(cfg *config.Config, policy calendar.Policy) Engine {
	e := Engine{
		Now:               time.Now,
		NewID:             uuid.NewString,
		Calendar:          policy,
		DuplicateInterval: DefaultDuplicateInterval,
	}
	if cfg != nil {
		e.DuplicateInterval = cfg.Checkin.DuplicateInterval.Duration
		e.MaxAccuracyMeters = cfg.Checkin.MaxAccuracyMeters
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) calendar() calendar.Policy {
	if e.Calendar != nil {
		return e.Calendar
	}
	return calendar.EveryDay
}
