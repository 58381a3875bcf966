package model

import "time"

// MasterProjectName is the name of the distinguished project holding the
// currently approved configuration baseline. Exactly one project with this
// name exists; it is created at startup if absent.
const MasterProjectName = "Machine Configuration Baseline"

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusDevelopment ProjectStatus = "development"
	StatusSubmitted   ProjectStatus = "submitted"
	StatusApproved    ProjectStatus = "approved"
	StatusHidden      ProjectStatus = "hidden"
)

// Project is a named collection of device records moving through the
// submit/approve lifecycle. Times are zero when unset.
type Project struct {
	ID           string
	Name         string // globally unique
	Description  string
	Owner        string   // user id
	Editors      []string // usernames
	Approvers    []string // usernames (normalized on submit)
	ApprovedBy   []string
	Submitter    string
	Status       ProjectStatus
	Notes        []string // free-text, newest first
	CreationTime time.Time
	SubmittedAt  time.Time
	ApprovedAt   time.Time
}

// Snapshot is an immutable, timestamped record of a project's complete
// device membership at one point in time. The most recently created
// snapshot for a project is authoritative for "current state".
type Snapshot struct {
	ID        string
	ProjectID string
	Author    string
	Created   time.Time
	Devices   []string // complete membership, device record ids
	Changelog []ChangeEntry
	Name      string // optional label when the user tags a point in time
}

// ChangeEntry is one field-level before/after audit record attached to a
// snapshot. It is never read back as input to behavior.
type ChangeEntry struct {
	DeviceID string // empty for newly created devices
	FC       string
	Project  string // project name
	Field    string
	Previous any
	Value    any
	User     string
	Time     time.Time
}

// Tag labels a snapshot time within a project. Tags are created on demand,
// never updated, and removed only by a project hard-delete.
type Tag struct {
	ID        string
	ProjectID string
	Name      string // unique per project
	Time      time.Time
}

// ApprovalEvent records one merge of an approved project into the master
// baseline.
type ApprovalEvent struct {
	ID        string
	ProjectID string
	Submitter string
	Time      time.Time
}

// Comment is one entry in a device's discussion thread, newest first.
type Comment struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Comment string    `json:"comment"`
	Created time.Time `json:"created"`
}
