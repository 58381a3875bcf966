package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"confdb/internal/model"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore implements core.Database on top of database/sql. Queries are
// written with ? placeholders and rebound for postgres. Record lists
// (editors, devices, changelog) and the device attribute map are stored as
// JSON columns.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *sqlStore) query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *sqlStore) queryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encoding string list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decoding string list: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func encodeChangelog(changes []model.ChangeEntry) (string, error) {
	if changes == nil {
		changes = []model.ChangeEntry{}
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return "", fmt.Errorf("encoding changelog: %w", err)
	}
	return string(data), nil
}

func decodeChangelog(data string) ([]model.ChangeEntry, error) {
	if data == "" {
		return nil, nil
	}
	var out []model.ChangeEntry
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decoding changelog: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const projectColumns = "id, name, description, owner, editors, approvers, approved_by, submitter, status, notes, creation_time, submitted_at, approved_at"

// Project operations

func (s *sqlStore) InsertProject(project *model.Project) error {
	editors, err := encodeStrings(project.Editors)
	if err != nil {
		return err
	}
	approvers, err := encodeStrings(project.Approvers)
	if err != nil {
		return err
	}
	approvedBy, err := encodeStrings(project.ApprovedBy)
	if err != nil {
		return err
	}
	notes, err := encodeStrings(project.Notes)
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Description, project.Owner,
		editors, approvers, approvedBy, project.Submitter,
		string(project.Status), notes, project.CreationTime,
		nullTime(project.SubmittedAt), nullTime(project.ApprovedAt))
	if err != nil {
		return fmt.Errorf("inserting project %s: %w", project.Name, err)
	}
	return nil
}

func scanProject(row interface{ Scan(...any) error }) (*model.Project, error) {
	var p model.Project
	var editors, approvers, approvedBy, notes, status string
	var submittedAt, approvedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Owner,
		&editors, &approvers, &approvedBy, &p.Submitter,
		&status, &notes, &p.CreationTime, &submittedAt, &approvedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.ProjectStatus(status)
	if p.Editors, err = decodeStrings(editors); err != nil {
		return nil, err
	}
	if p.Approvers, err = decodeStrings(approvers); err != nil {
		return nil, err
	}
	if p.ApprovedBy, err = decodeStrings(approvedBy); err != nil {
		return nil, err
	}
	if p.Notes, err = decodeStrings(notes); err != nil {
		return nil, err
	}
	p.CreationTime = p.CreationTime.UTC()
	if submittedAt.Valid {
		p.SubmittedAt = submittedAt.Time.UTC()
	}
	if approvedAt.Valid {
		p.ApprovedAt = approvedAt.Time.UTC()
	}
	return &p, nil
}

func (s *sqlStore) GetProject(id string) (*model.Project, error) {
	project, err := scanProject(s.queryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	return project, nil
}

func (s *sqlStore) FindProjectByName(name string) (*model.Project, error) {
	project, err := scanProject(s.queryRow(`SELECT `+projectColumns+` FROM projects WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding project %s: %w", name, err)
	}
	return project, nil
}

func (s *sqlStore) AllProjects() ([]*model.Project, error) {
	rows, err := s.query(`SELECT ` + projectColumns + ` FROM projects ORDER BY creation_time DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpdateProject(project *model.Project) error {
	editors, err := encodeStrings(project.Editors)
	if err != nil {
		return err
	}
	approvers, err := encodeStrings(project.Approvers)
	if err != nil {
		return err
	}
	approvedBy, err := encodeStrings(project.ApprovedBy)
	if err != nil {
		return err
	}
	notes, err := encodeStrings(project.Notes)
	if err != nil {
		return err
	}
	_, err = s.exec(`UPDATE projects SET
		name = ?, description = ?, owner = ?, editors = ?, approvers = ?,
		approved_by = ?, submitter = ?, status = ?, notes = ?,
		submitted_at = ?, approved_at = ?
		WHERE id = ?`,
		project.Name, project.Description, project.Owner, editors, approvers,
		approvedBy, project.Submitter, string(project.Status), notes,
		nullTime(project.SubmittedAt), nullTime(project.ApprovedAt), project.ID)
	if err != nil {
		return fmt.Errorf("updating project %s: %w", project.ID, err)
	}
	return nil
}

func (s *sqlStore) DeleteProject(id string) error {
	if _, err := s.exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	return nil
}

// Device history operations

func (s *sqlStore) InsertDevice(device model.Device) error {
	data, err := model.EncodeDevice(device)
	if err != nil {
		return err
	}
	created, _ := device.Created()
	_, err = s.exec(`INSERT INTO device_history (id, project_id, fc, created, data) VALUES (?, ?, ?, ?, ?)`,
		device.ID(), device.ProjectID(), device.FC(), created, string(data))
	if err != nil {
		return fmt.Errorf("inserting device %s: %w", device.FC(), err)
	}
	return nil
}

func (s *sqlStore) GetDevice(id string) (model.Device, error) {
	var data string
	err := s.queryRow(`SELECT data FROM device_history WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading device %s: %w", id, err)
	}
	return model.DecodeDevice([]byte(data))
}

// inClause builds a "(?, ?, ...)" fragment and the matching args.
func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(placeholders, ", ") + ")", args
}

func (s *sqlStore) GetDevices(ids []string) ([]model.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clause, args := inClause(ids)
	rows, err := s.query(`SELECT data FROM device_history WHERE id IN `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		device, err := model.DecodeDevice([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, device)
	}
	return out, rows.Err()
}

func (s *sqlStore) FindDeviceByFC(ids []string, fc string) (model.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clause, args := inClause(ids)
	args = append(args, fc)
	var data string
	err := s.queryRow(`SELECT data FROM device_history WHERE id IN `+clause+` AND fc = ? ORDER BY created DESC LIMIT 1`, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding device %s: %w", fc, err)
	}
	return model.DecodeDevice([]byte(data))
}

func (s *sqlStore) FindDeviceIDByFC(projectID, fc string) (string, error) {
	var id string
	err := s.queryRow(`SELECT id FROM device_history WHERE project_id = ? AND fc = ? ORDER BY created DESC LIMIT 1`, projectID, fc).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding device id for %s: %w", fc, err)
	}
	return id, nil
}

func (s *sqlStore) SetDeviceDiscussion(deviceID string, discussion []model.Comment) error {
	device, err := s.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return nil
	}
	if discussion == nil {
		discussion = []model.Comment{}
	}
	device[model.KeyDiscussion] = discussion
	data, err := model.EncodeDevice(device)
	if err != nil {
		return err
	}
	if _, err := s.exec(`UPDATE device_history SET data = ? WHERE id = ?`, string(data), deviceID); err != nil {
		return fmt.Errorf("updating discussion of device %s: %w", deviceID, err)
	}
	return nil
}

// Snapshot operations

const snapshotColumns = "id, project_id, author, created, name, devices, changelog"

// snapshotOrder breaks ties between snapshots written within the same clock
// tick by insertion order. Sqlite exposes the implicit rowid; postgres has an
// explicit seq column.
func (s *sqlStore) snapshotOrder() string {
	if s.dialect == dialectPostgres {
		return "seq"
	}
	return "rowid"
}

func (s *sqlStore) InsertSnapshot(snapshot *model.Snapshot) error {
	devices, err := encodeStrings(snapshot.Devices)
	if err != nil {
		return err
	}
	changelog, err := encodeChangelog(snapshot.Changelog)
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO project_snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.ProjectID, snapshot.Author, snapshot.Created,
		snapshot.Name, devices, changelog)
	if err != nil {
		return fmt.Errorf("inserting snapshot for project %s: %w", snapshot.ProjectID, err)
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var snap model.Snapshot
	var devices, changelog string
	err := row.Scan(&snap.ID, &snap.ProjectID, &snap.Author, &snap.Created, &snap.Name, &devices, &changelog)
	if err != nil {
		return nil, err
	}
	snap.Created = snap.Created.UTC()
	if snap.Devices, err = decodeStrings(devices); err != nil {
		return nil, err
	}
	if snap.Changelog, err = decodeChangelog(changelog); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *sqlStore) RecentSnapshot(projectID string) (*model.Snapshot, error) {
	snap, err := scanSnapshot(s.queryRow(`SELECT `+snapshotColumns+` FROM project_snapshots
		WHERE project_id = ? ORDER BY created DESC, `+s.snapshotOrder()+` DESC LIMIT 1`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading recent snapshot of project %s: %w", projectID, err)
	}
	return snap, nil
}

func (s *sqlStore) ProjectSnapshots(projectID string) ([]*model.Snapshot, error) {
	rows, err := s.query(`SELECT `+snapshotColumns+` FROM project_snapshots
		WHERE project_id = ? ORDER BY created, `+s.snapshotOrder(), projectID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots of project %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []*model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteProjectSnapshots(projectID string) error {
	if _, err := s.exec(`DELETE FROM project_snapshots WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("deleting snapshots of project %s: %w", projectID, err)
	}
	return nil
}

// Tag operations

func (s *sqlStore) InsertTag(tag *model.Tag) error {
	_, err := s.exec(`INSERT INTO tags (id, project_id, name, time) VALUES (?, ?, ?, ?)`,
		tag.ID, tag.ProjectID, tag.Name, tag.Time)
	if err != nil {
		return fmt.Errorf("inserting tag %s: %w", tag.Name, err)
	}
	return nil
}

func (s *sqlStore) FindTag(projectID, name string) (*model.Tag, error) {
	var tag model.Tag
	err := s.queryRow(`SELECT id, project_id, name, time FROM tags WHERE project_id = ? AND name = ?`, projectID, name).
		Scan(&tag.ID, &tag.ProjectID, &tag.Name, &tag.Time)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding tag %s: %w", name, err)
	}
	tag.Time = tag.Time.UTC()
	return &tag, nil
}

func (s *sqlStore) ProjectTags(projectID string) ([]*model.Tag, error) {
	rows, err := s.query(`SELECT id, project_id, name, time FROM tags WHERE project_id = ? ORDER BY time, name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing tags of project %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []*model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.ProjectID, &tag.Name, &tag.Time); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tag.Time = tag.Time.UTC()
		out = append(out, &tag)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteProjectTags(projectID string) error {
	if _, err := s.exec(`DELETE FROM tags WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("deleting tags of project %s: %w", projectID, err)
	}
	return nil
}

// Approval history operations

func (s *sqlStore) InsertApprovalEvent(event *model.ApprovalEvent) error {
	_, err := s.exec(`INSERT INTO approval_history (id, project_id, submitter, time) VALUES (?, ?, ?, ?)`,
		event.ID, event.ProjectID, event.Submitter, event.Time)
	if err != nil {
		return fmt.Errorf("inserting approval event: %w", err)
	}
	return nil
}

func (s *sqlStore) ApprovalEvents(limit int) ([]*model.ApprovalEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(`SELECT id, project_id, submitter, time FROM approval_history ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing approval history: %w", err)
	}
	defer rows.Close()

	var out []*model.ApprovalEvent
	for rows.Next() {
		var event model.ApprovalEvent
		if err := rows.Scan(&event.ID, &event.ProjectID, &event.Submitter, &event.Time); err != nil {
			return nil, fmt.Errorf("scanning approval event: %w", err)
		}
		event.Time = event.Time.UTC()
		out = append(out, &event)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
