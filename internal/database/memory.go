package database

import (
	"sort"
	"sync"
	"time"

	"confdb/internal/core"
	"confdb/internal/model"
)

// MemoryDatabase is a core.Database backed by in-process maps. It is used
// by tests and embedded deployments that don't need persistence. All
// records are copied on the way in and out, so callers can't mutate stored
// state behind the store's back.
type MemoryDatabase struct {
	mu        sync.RWMutex
	projects  map[string]*model.Project
	devices   map[string]model.Device
	snapshots map[string]*model.Snapshot
	// snapshots created within the same clock tick are ordered by insertion
	snapshotSeq map[string]int
	nextSeq     int
	tags        map[string]*model.Tag
	approvals   []*model.ApprovalEvent
}

var _ core.Database = (*MemoryDatabase)(nil)

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		projects:    make(map[string]*model.Project),
		devices:     make(map[string]model.Device),
		snapshots:   make(map[string]*model.Snapshot),
		snapshotSeq: make(map[string]int),
		tags:        make(map[string]*model.Tag),
	}
}

func copyProject(p *model.Project) *model.Project {
	out := *p
	out.Editors = append([]string(nil), p.Editors...)
	out.Approvers = append([]string(nil), p.Approvers...)
	out.ApprovedBy = append([]string(nil), p.ApprovedBy...)
	out.Notes = append([]string(nil), p.Notes...)
	return &out
}

func copySnapshot(s *model.Snapshot) *model.Snapshot {
	out := *s
	out.Devices = append([]string(nil), s.Devices...)
	out.Changelog = append([]model.ChangeEntry(nil), s.Changelog...)
	return &out
}

func (m *MemoryDatabase) InsertProject(project *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = copyProject(project)
	return nil
}

func (m *MemoryDatabase) GetProject(id string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	return copyProject(p), nil
}

func (m *MemoryDatabase) FindProjectByName(name string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.Name == name {
			return copyProject(p), nil
		}
	}
	return nil, nil
}

func (m *MemoryDatabase) AllProjects() ([]*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, copyProject(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreationTime.Equal(out[j].CreationTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreationTime.After(out[j].CreationTime)
	})
	return out, nil
}

func (m *MemoryDatabase) UpdateProject(project *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = copyProject(project)
	return nil
}

func (m *MemoryDatabase) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *MemoryDatabase) InsertDevice(device model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.ID()] = device.Clone()
	return nil
}

func (m *MemoryDatabase) GetDevice(id string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (m *MemoryDatabase) GetDevices(ids []string) ([]model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Device, 0, len(ids))
	for _, id := range ids {
		if d, ok := m.devices[id]; ok {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *MemoryDatabase) FindDeviceByFC(ids []string, fc string) (model.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		d, ok := m.devices[id]
		if !ok {
			continue
		}
		if d.FC() == fc {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (m *MemoryDatabase) FindDeviceIDByFC(projectID, fc string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bestID string
	var bestTime time.Time
	for id, d := range m.devices {
		if d.ProjectID() != projectID || d.FC() != fc {
			continue
		}
		created, _ := d.Created()
		if bestID == "" || created.After(bestTime) {
			bestID = id
			bestTime = created
		}
	}
	return bestID, nil
}

func (m *MemoryDatabase) SetDeviceDiscussion(deviceID string, discussion []model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	d[model.KeyDiscussion] = append([]model.Comment(nil), discussion...)
	return nil
}

func (m *MemoryDatabase) InsertSnapshot(snapshot *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = copySnapshot(snapshot)
	m.nextSeq++
	m.snapshotSeq[snapshot.ID] = m.nextSeq
	return nil
}

func (m *MemoryDatabase) RecentSnapshot(projectID string) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recent *model.Snapshot
	for _, s := range m.snapshots {
		if s.ProjectID != projectID {
			continue
		}
		if recent == nil || s.Created.After(recent.Created) ||
			(s.Created.Equal(recent.Created) && m.snapshotSeq[s.ID] > m.snapshotSeq[recent.ID]) {
			recent = s
		}
	}
	if recent == nil {
		return nil, nil
	}
	return copySnapshot(recent), nil
}

func (m *MemoryDatabase) ProjectSnapshots(projectID string) ([]*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Snapshot
	for _, s := range m.snapshots {
		if s.ProjectID == projectID {
			out = append(out, copySnapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return m.snapshotSeq[out[i].ID] < m.snapshotSeq[out[j].ID]
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (m *MemoryDatabase) DeleteProjectSnapshots(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.snapshots {
		if s.ProjectID == projectID {
			delete(m.snapshots, id)
			delete(m.snapshotSeq, id)
		}
	}
	return nil
}

func (m *MemoryDatabase) InsertTag(tag *model.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *tag
	m.tags[tag.ID] = &t
	return nil
}

func (m *MemoryDatabase) FindTag(projectID, name string) (*model.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tags {
		if t.ProjectID == projectID && t.Name == name {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryDatabase) ProjectTags(projectID string) ([]*model.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Tag
	for _, t := range m.tags {
		if t.ProjectID == projectID {
			tag := *t
			out = append(out, &tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *MemoryDatabase) DeleteProjectTags(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tags {
		if t.ProjectID == projectID {
			delete(m.tags, id)
		}
	}
	return nil
}

func (m *MemoryDatabase) InsertApprovalEvent(event *model.ApprovalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *event
	m.approvals = append(m.approvals, &e)
	return nil
}

func (m *MemoryDatabase) ApprovalEvents(limit int) ([]*model.ApprovalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.ApprovalEvent, 0, len(m.approvals))
	for _, e := range m.approvals {
		event := *e
		out = append(out, &event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDatabase) Close() error { return nil }
