package core

import (
	"fmt"

	"confdb/internal/model"
)

// Service is the orchestration layer that coordinates project, device,
// snapshot and approval operations on top of the storage backend.
type Service struct {
	db       Database
	roles    RoleLookup
	notifier Notifier
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewService creates a new Service with the provided dependencies.
func NewService(db Database, roles RoleLookup, notifier Notifier, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		db:       db,
		roles:    roles,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// EnsureMasterProject returns the master project, creating it on first use.
// The master project holds the currently approved machine configuration and
// is the merge target of every approval.
func (s *Service) EnsureMasterProject() (*model.Project, error) {
	existing, err := s.db.FindProjectByName(model.MasterProjectName)
	if err != nil {
		return nil, fmt.Errorf("finding master project: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	master := &model.Project{
		ID:           s.idgen.New(),
		Name:         model.MasterProjectName,
		Description:  "Currently approved machine configuration",
		Owner:        "",
		Status:       model.StatusApproved,
		CreationTime: s.clock.Now(),
	}
	if err := s.db.InsertProject(master); err != nil {
		return nil, fmt.Errorf("creating master project: %w", err)
	}
	s.logger.Info("master project created", "id", master.ID)
	return master, nil
}
