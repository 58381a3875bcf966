package core

import (
	"fmt"
	"time"

	"confdb/internal/model"
)

// appendSnapshot writes one new snapshot carrying the complete device
// membership of the project. Snapshots are never edited afterwards; the
// newest one is authoritative for "current state".
func (s *Service) appendSnapshot(projectID, author string, deviceIDs []string, changelog []model.ChangeEntry, name string) error {
	snapshot := &model.Snapshot{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Author:    author,
		Created:   s.clock.Now(),
		Devices:   deviceIDs,
		Changelog: changelog,
		Name:      name,
	}
	if err := s.db.InsertSnapshot(snapshot); err != nil {
		return fmt.Errorf("creating snapshot for project %s: %w", projectID, err)
	}
	return nil
}

// RecentSnapshot returns the newest snapshot of a project, or nil when the
// project has never had one.
func (s *Service) RecentSnapshot(projectID string) (*model.Snapshot, error) {
	return s.db.RecentSnapshot(projectID)
}

// LastEditTime returns the creation time of the project's newest snapshot,
// or the zero time when there is none.
func (s *Service) LastEditTime(projectID string) (time.Time, error) {
	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return time.Time{}, err
	}
	if snapshot == nil {
		return time.Time{}, nil
	}
	return snapshot.Created, nil
}

// AllLastEditTimes returns the last edit time of every project, keyed by
// project id. Projects without snapshots are absent from the result.
func (s *Service) AllLastEditTimes() (map[string]time.Time, error) {
	projects, err := s.db.AllProjects()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(projects))
	for _, p := range projects {
		t, err := s.LastEditTime(p.ID)
		if err != nil {
			return nil, err
		}
		if !t.IsZero() {
			out[p.ID] = t
		}
	}
	return out, nil
}

// ProjectChanges returns the aggregated changelog across every snapshot of
// the project, oldest snapshot first.
func (s *Service) ProjectChanges(projectID string) ([]model.ChangeEntry, error) {
	snapshots, err := s.db.ProjectSnapshots(projectID)
	if err != nil {
		return nil, err
	}
	var changes []model.ChangeEntry
	for _, snap := range snapshots {
		changes = append(changes, snap.Changelog...)
	}
	return changes, nil
}

// AddTag labels the given time within a project. Tag names are unique per
// project and never updated afterwards.
func (s *Service) AddTag(projectID, name string, at time.Time) ([]*model.Tag, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("cannot find project for %s", projectID)
	}

	existing, err := s.db.FindTag(projectID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("tag %s already exists for project %s", name, projectID)
	}

	tag := &model.Tag{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Name:      name,
		Time:      at,
	}
	if err := s.db.InsertTag(tag); err != nil {
		return nil, fmt.Errorf("creating tag %s: %w", name, err)
	}
	return s.db.ProjectTags(projectID)
}

// ProjectTags returns all tags of a project.
func (s *Service) ProjectTags(projectID string) ([]*model.Tag, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("cannot find project for %s", projectID)
	}
	return s.db.ProjectTags(projectID)
}
