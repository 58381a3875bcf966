package core

import "confdb/internal/model"

// Database is the persistence surface the core exposes to its storage
// layer: five logical record tables. Not-found lookups return (nil, nil);
// errors are reserved for real storage failures. Implementations must make
// single-record writes atomic; no multi-record transaction is assumed.
type Database interface {
	// Project operations

	// InsertProject stores a new project record. The caller assigns the id.
	InsertProject(project *model.Project) error

	// GetProject returns a project by id, or nil when absent.
	GetProject(id string) (*model.Project, error)

	// FindProjectByName returns a project by its unique name, or nil.
	FindProjectByName(name string) (*model.Project, error)

	// AllProjects returns every project, newest creation time first.
	AllProjects() ([]*model.Project, error)

	// UpdateProject replaces the stored record with the given one.
	UpdateProject(project *model.Project) error

	// DeleteProject removes the project record only; snapshots and tags
	// are removed through their own delete calls.
	DeleteProject(id string) error

	// Device history operations. Device records are immutable versions;
	// there is no update or delete. The one exception is the discussion
	// thread, which is edited in place on the current record.

	InsertDevice(device model.Device) error

	// GetDevice returns one device record by id, or nil when absent.
	GetDevice(id string) (model.Device, error)

	// GetDevices returns the records for the given ids; missing ids are
	// skipped, not an error.
	GetDevices(ids []string) ([]model.Device, error)

	// FindDeviceByFC returns the record among ids with the given fc name,
	// or nil.
	FindDeviceByFC(ids []string, fc string) (model.Device, error)

	// FindDeviceIDByFC returns the id of the newest device record created
	// under the given project with the given fc name, or "".
	FindDeviceIDByFC(projectID, fc string) (string, error)

	// SetDeviceDiscussion replaces the discussion thread of an existing
	// device record in place.
	SetDeviceDiscussion(deviceID string, discussion []model.Comment) error

	// Snapshot operations. Snapshots are append-only; they are removed
	// only by a project hard-delete cascade.

	InsertSnapshot(snapshot *model.Snapshot) error

	// RecentSnapshot returns the snapshot with the greatest created time
	// for the project, or nil when the project has never had one.
	RecentSnapshot(projectID string) (*model.Snapshot, error)

	// ProjectSnapshots returns all snapshots for a project, oldest first.
	ProjectSnapshots(projectID string) ([]*model.Snapshot, error)

	DeleteProjectSnapshots(projectID string) error

	// Tag operations

	InsertTag(tag *model.Tag) error

	// FindTag returns a project's tag by name, or nil.
	FindTag(projectID, name string) (*model.Tag, error)

	// ProjectTags returns all tags for a project.
	ProjectTags(projectID string) ([]*model.Tag, error)

	DeleteProjectTags(projectID string) error

	// Approval history operations

	InsertApprovalEvent(event *model.ApprovalEvent) error

	// ApprovalEvents returns the most recent merge events, newest first.
	ApprovalEvents(limit int) ([]*model.ApprovalEvent, error)

	// Close closes the underlying store.
	Close() error
}
