// Package app runs the presence use cases: it loads scoped collections from
// the store, hands them to the engine and persists what comes back, one
// transaction per command.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fieldline/internal/calendar"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/events"
	"fieldline/internal/logging"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

var (
	ErrInvalidAgent = errors.New("invalid agent")
	ErrInvalidZone  = errors.New("invalid zone")
)

var validate = validator.New()

type agentInput struct {
	ID   string `validate:"required,max=64"`
	Name string `validate:"max=128"`
}

type zoneInput struct {
	ID     string  `validate:"required,max=64"`
	Lat    float64 `validate:"gte=-90,lte=90"`
	Lon    float64 `validate:"gte=-180,lte=180"`
	Radius float64 `validate:"gt=0"`
}

type Service struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Events events.Writer
	Log    *logrus.Logger
	Config *config.Config
	// ActorID is recorded on every event this service appends.
	ActorID string
}

// Open opens (and migrates) the workspace database and wires a service.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *logrus.Logger) (*Service, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s, err := New(conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New wires a service over an already migrated database. A nil cfg uses
// config.Default and a nil log discards output.
func New(conn *sql.DB, cfg *config.Config, log *logrus.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := calendar.FromConfig(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	eng := engine.New(cfg, policy)
	return &Service{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Engine: eng,
		Events: events.Writer{Now: eng.Now},
		Log:    log,
		Config: cfg,
	}, nil
}

func (s *Service) Close() error {
	return s.DB.Close()
}

// SetClock replaces the engine and event clocks together.
func (s *Service) SetClock(now func() time.Time) {
	s.Engine.Now = now
	s.Events.Now = now
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) event(ctx context.Context, tx *sql.Tx, rec events.Record) error {
	rec.ActorID = s.ActorID
	if err := s.Events.Append(ctx, tx, rec); err != nil {
		return fmt.Errorf("append %s event: %w", rec.Type, err)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Engine.Now != nil {
		return s.Engine.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.Engine.NewID != nil {
		return s.Engine.NewID()
	}
	return uuid.NewString()
}

// CreateAgent registers an agent. An empty id gets a generated one.
func (s *Service) CreateAgent(ctx context.Context, id, name string) (domain.Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.newID()
	}
	a := domain.Agent{ID: id, Name: strings.TrimSpace(name), CreatedAt: s.now()}
	if err := validate.Struct(agentInput{ID: a.ID, Name: a.Name}); err != nil {
		return domain.Agent{}, fmt.Errorf("%w: %v", ErrInvalidAgent, err)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.InsertAgent(ctx, tx, a); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrInvalidAgent, err)
			}
			return err
		}
		return s.event(ctx, tx, events.Record{
			Type: events.AgentCreated, EntityKind: "agent", EntityID: a.ID, AgentID: a.ID,
			Payload: events.Payload{"name": a.Name},
		})
	})
	if err != nil {
		return domain.Agent{}, err
	}
	s.Log.WithField("agent_id", a.ID).Info("agent created")
	return a, nil
}

func (s *Service) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	return s.Repo.GetAgent(ctx, nil, id)
}

func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.Repo.ListAgents(ctx)
}

// SetZone adds or replaces one of the agent's reference zones.
func (s *Service) SetZone(ctx context.Context, agentID string, z domain.Zone) (domain.Agent, error) {
	z.ID = strings.TrimSpace(z.ID)
	in := zoneInput{ID: z.ID, Lat: z.Center.Lat, Lon: z.Center.Lon, Radius: z.RadiusMeters}
	if err := validate.Struct(in); err != nil {
		return domain.Agent{}, fmt.Errorf("%w: %v", ErrInvalidZone, err)
	}
	if z.ValidFrom != nil && z.ValidTo != nil && z.ValidTo.Before(*z.ValidFrom) {
		return domain.Agent{}, fmt.Errorf("%w: validity window ends before it starts", ErrInvalidZone)
	}
	var agent domain.Agent
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetAgent(ctx, tx, agentID); err != nil {
			return err
		}
		if err := s.Repo.UpsertZone(ctx, tx, agentID, z); err != nil {
			return err
		}
		if err := s.event(ctx, tx, events.Record{
			Type: events.ZoneSet, EntityKind: "zone", EntityID: z.ID, AgentID: agentID,
			Payload: events.Payload{"lat": z.Center.Lat, "lon": z.Center.Lon, "radius_m": z.RadiusMeters},
		}); err != nil {
			return err
		}
		var err error
		agent, err = s.Repo.GetAgent(ctx, tx, agentID)
		return err
	})
	if err != nil {
		return domain.Agent{}, err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": agentID, "zone_id": z.ID}).Info("zone set")
	return agent, nil
}

func (s *Service) RemoveZone(ctx context.Context, agentID, zoneID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.DeleteZone(ctx, tx, agentID, zoneID); err != nil {
			return err
		}
		return s.event(ctx, tx, events.Record{Type: events.ZoneRemoved, EntityKind: "zone", EntityID: zoneID, AgentID: agentID})
	})
	if err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": agentID, "zone_id": zoneID}).Info("zone removed")
	return nil
}

// AuditLog returns the newest audit entries, optionally for one agent.
func (s *Service) AuditLog(ctx context.Context, agentID string, limit int) ([]domain.Event, error) {
	return s.Repo.LatestEvents(ctx, agentID, limit)
}
