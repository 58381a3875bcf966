package core

import (
	"fmt"
	"sort"
	"time"

	"confdb/internal/model"
	"confdb/internal/validate"
)

// createDevice stores a brand-new device record and returns its id. Any
// caller-supplied id is stripped so an update of an existing record never
// reuses its id: device history is copy-on-write.
func (s *Service) createDevice(projectID string, values model.Device, modTime time.Time) (string, error) {
	device := values.Clone()
	delete(device, model.KeyID)
	// records merged or copied from another project must not keep the
	// source project's id
	device[model.KeyProjectID] = projectID
	if _, ok := device[model.KeyDiscussion]; !ok {
		device[model.KeyDiscussion] = []model.Comment{}
	}
	if _, ok := device[model.KeyState]; !ok {
		device[model.KeyState] = string(model.StateConceptual)
	}
	device[model.KeyCreated] = modTime
	device[model.KeyID] = s.idgen.New()

	if err := s.db.InsertDevice(device); err != nil {
		return "", fmt.Errorf("storing device %s: %w", device.FC(), err)
	}
	return device.ID(), nil
}

// updateDevice builds a new device record by overlaying the update onto the
// current record and returns the changelog and the new record's id. When
// nothing actually changed no record is written and the returned id is
// empty; the caller keeps referencing the existing record.
//
// current, when non-nil, is the project's fc-to-device map so batch callers
// avoid re-reading the project for every device. An update whose fc is not
// in the map describes a device new to this project and becomes a create.
func (s *Service) updateDevice(user string, project *model.Project, update model.Device, modTime time.Time, stripDiscussion bool, current map[string]model.Device) ([]model.ChangeEntry, string, error) {
	deviceID := update.ID()
	if deviceID == "" && current != nil {
		// import rows carry no record id; the fc resolves them against the
		// project's current device set
		if cur, ok := current[update.FC()]; ok {
			deviceID = cur.ID()
		}
	}
	if deviceID == "" {
		return s.createFromUpdate(user, project, update, modTime, stripDiscussion)
	}

	var currentAttrs model.Device
	if current != nil {
		cur, ok := current[update.FC()]
		if !ok {
			return s.createFromUpdate(user, project, update, modTime, stripDiscussion)
		}
		currentAttrs = cur
	} else {
		device, err := s.db.GetDevice(deviceID)
		if err != nil {
			return nil, "", fmt.Errorf("loading device %s: %w", deviceID, err)
		}
		if device == nil {
			return nil, "", fmt.Errorf("cannot find device %s", deviceID)
		}
		currentAttrs = device
	}

	// Timestamps must be monotonically increasing per project, or racing
	// writers could record a history inconsistent with wall-clock order.
	snapshot, err := s.db.RecentSnapshot(project.ID)
	if err != nil {
		return nil, "", err
	}
	if snapshot != nil && modTime.Before(snapshot.Created) {
		return nil, "", fmt.Errorf("the time on this server %s is before the most recent change from the server %s",
			modTime.Format(time.RFC3339), snapshot.Created.Format(time.RFC3339))
	}

	// changelog entries track the fc of the record being replaced; a merge
	// may pass a record that never had one
	fc := currentAttrs.FC()
	if fc == "" {
		fc = update.FC()
	}

	known := validate.KnownFields()
	fieldsToInsert := model.Device{}
	var changelog []model.ChangeEntry

	for _, name := range sortedKeys(update) {
		value := update[name]
		switch name {
		case model.KeyID, model.KeyProjectID, model.KeyCreated:
			continue
		case model.KeyDiscussion:
			if stripDiscussion {
				continue
			}
			fieldsToInsert[model.KeyDiscussion] = s.mergeDiscussion(currentAttrs.Discussion(), value, modTime)
			continue
		}

		field, ok := known[name]
		if !ok {
			// unknown attributes are skipped on partial updates; only the
			// explicit full-device validation path rejects them
			s.logger.Debug("skipping unknown device attribute", "attr", name)
			continue
		}
		converted, err := field.ConvertValue(value)
		if err != nil {
			return nil, "", fmt.Errorf("wrong type - %s, ('%v')", name, value)
		}

		previous := currentAttrs[name]
		if !model.ValuesEqual(previous, converted) {
			changelog = append(changelog, model.ChangeEntry{
				DeviceID: deviceID,
				FC:       fc,
				Project:  project.Name,
				Field:    name,
				Previous: previous,
				Value:    converted,
				User:     user,
				Time:     modTime,
			})
			fieldsToInsert[name] = converted
		}
	}

	if len(fieldsToInsert) == 0 {
		return changelog, "", nil
	}

	base := currentAttrs.Clone()
	delete(base, model.KeyID)
	delete(base, model.KeyCreated)
	for k, v := range fieldsToInsert {
		base[k] = v
	}
	newID, err := s.createDevice(project.ID, base, modTime)
	if err != nil {
		return nil, "", err
	}
	s.logger.Debug("device updated", "fc", fc, "changes", len(changelog), "id", newID)
	return changelog, newID, nil
}

// createFromUpdate handles the update path for a device that has no prior
// record in the target project: every provided attribute is a change.
func (s *Service) createFromUpdate(user string, project *model.Project, update model.Device, modTime time.Time, stripDiscussion bool) ([]model.ChangeEntry, string, error) {
	values := update.Clone()
	delete(values, model.KeyID)
	if stripDiscussion {
		delete(values, model.KeyDiscussion)
	}
	newID, err := s.createDevice(project.ID, values, modTime)
	if err != nil {
		return nil, "", err
	}

	var changelog []model.ChangeEntry
	for _, name := range sortedKeys(values) {
		changelog = append(changelog, model.ChangeEntry{
			FC:      update.FC(),
			Project: project.Name,
			Field:   name,
			Value:   values[name],
			User:    user,
			Time:    modTime,
		})
	}
	return changelog, newID, nil
}

// mergeDiscussion front-merges incoming comments into the existing thread.
// An incoming comment whose text exactly matches an existing comment's text
// is dropped. Every inserted comment gets a fresh id so it can later be
// deleted individually.
func (s *Service) mergeDiscussion(existing []model.Comment, incoming any, modTime time.Time) []model.Comment {
	knownTexts := make(map[string]bool, len(existing))
	for _, c := range existing {
		knownTexts[c.Comment] = true
	}

	merged := existing
	for _, c := range incomingComments(incoming) {
		if c.Comment != "" && knownTexts[c.Comment] {
			continue
		}
		created := c.Created
		if created.IsZero() {
			created = modTime
		}
		merged = append([]model.Comment{{
			ID:      s.idgen.New(),
			Author:  c.Author,
			Comment: c.Comment,
			Created: created,
		}}, merged...)
	}
	return merged
}

func incomingComments(value any) []model.Comment {
	switch list := value.(type) {
	case []model.Comment:
		return list
	case []any:
		out := make([]model.Comment, 0, len(list))
		for _, e := range list {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			var c model.Comment
			c.Author, _ = m["author"].(string)
			c.Comment, _ = m["comment"].(string)
			if t, ok := m["created"].(time.Time); ok {
				c.Created = t
			}
			out = append(out, c)
		}
		return out
	}
	return nil
}

// AddDevice creates a new device in a project and appends a snapshot with
// the extended membership. The project must be editable by the user.
func (s *Service) AddDevice(user, projectID string, values model.Device) (string, error) {
	project, err := s.editableProject(projectID, user)
	if err != nil {
		return "", err
	}
	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return "", err
	}
	if snapshot == nil {
		return "", fmt.Errorf("no data found for project %s", projectID)
	}

	values = values.Clone()
	delete(values, model.KeyID)
	changelog, newID, err := s.updateDevice(user, project, values, s.clock.Now(), false, nil)
	if err != nil {
		return "", err
	}
	devices := append(append([]string{}, snapshot.Devices...), newID)
	if err := s.appendSnapshot(projectID, user, devices, changelog, ""); err != nil {
		return "", err
	}
	return newID, nil
}

// UpdateDeviceInProject updates one device of a project and appends a
// snapshot where the old record id is replaced by the new one. Returns the
// id of the record now representing the device, which is the old id when
// the update was a no-op.
func (s *Service) UpdateDeviceInProject(user, projectID string, update model.Device) (string, error) {
	deviceID := update.ID()
	if deviceID == "" {
		return "", fmt.Errorf("can't change device of a project: device id should not be empty")
	}

	project, err := s.db.GetProject(projectID)
	if err != nil {
		return "", fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return "", fmt.Errorf("project %s does not exist", projectID)
	}
	if project.Status != model.StatusDevelopment {
		return "", fmt.Errorf("can't change device %s: project %s is not in a development mode (status=%s)", deviceID, project.Name, project.Status)
	}

	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return "", err
	}
	if snapshot == nil {
		return "", fmt.Errorf("no data found for project %s", projectID)
	}

	changelog, newID, err := s.updateDevice(user, project, update, s.clock.Now(), false, nil)
	if err != nil {
		return "", err
	}
	if newID == "" {
		return deviceID, nil
	}

	devices := make([]string, 0, len(snapshot.Devices)+1)
	for _, id := range snapshot.Devices {
		if id != deviceID {
			devices = append(devices, id)
		}
	}
	devices = append(devices, newID)
	if err := s.appendSnapshot(projectID, user, devices, changelog, ""); err != nil {
		return "", err
	}
	return newID, nil
}

// UpdateDevices applies a batch of device updates to a project and appends
// one snapshot covering the whole batch. The batch is not atomic: a failure
// partway through leaves earlier device records written but no snapshot, so
// the project's current membership is unaffected.
func (s *Service) UpdateDevices(user, projectID string, devices []model.Device) (ImportCounter, error) {
	return s.updateDevices(user, projectID, devices, false, false)
}

func (s *Service) updateDevices(user, projectID string, devices []model.Device, stripDiscussion, skipPermissionCheck bool) (ImportCounter, error) {
	var counter ImportCounter

	project, err := s.db.GetProject(projectID)
	if err != nil {
		return counter, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return counter, fmt.Errorf("project %s does not exist", projectID)
	}

	// the master project is updated by the approval merge while in its
	// permanent approved status
	if project.Name != model.MasterProjectName && project.Status != model.StatusDevelopment {
		return counter, fmt.Errorf("can't update devices of a project that is not in a development mode (status = %s)", project.Status)
	}

	if !skipPermissionCheck {
		mayEdit, err := s.userMayEdit(user, project)
		if err != nil {
			return counter, err
		}
		if !mayEdit {
			return counter, fmt.Errorf("user '%s' is not allowed to update a project %s", user, project.Name)
		}
	}

	projectDevices, err := s.ProjectDevices(projectID)
	if err != nil {
		return counter, err
	}

	var newIDs []string
	var changes []model.ChangeEntry
	for _, device := range devices {
		changelog, newID, err := s.updateDevice(user, project, device, s.clock.Now(), stripDiscussion, projectDevices)
		if err != nil {
			return ImportCounter{}, err
		}
		if newID == "" {
			// no-op update, the existing record stays in the membership
			counter.Ignored++
			continue
		}
		delete(projectDevices, device.FC())
		changes = append(changes, changelog...)
		newIDs = append(newIDs, newID)
		counter.Success++
	}

	// untouched devices carry forward into the new snapshot unchanged
	for _, device := range projectDevices {
		newIDs = append(newIDs, device.ID())
	}

	if err := s.appendSnapshot(projectID, user, newIDs, changes, ""); err != nil {
		return ImportCounter{}, err
	}
	return counter, nil
}

// RemoveDevices drops the given device records from the project's current
// membership. The removal is detectable when it goes wrong: if the new
// membership is not smaller than the old one (bad ids, or a concurrent
// removal won the race) an error is reported after the snapshot write.
func (s *Service) RemoveDevices(user, projectID string, deviceIDs []string) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	if _, err := s.editableProject(projectID, user); err != nil {
		return err
	}

	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("no data found for project id %s", projectID)
	}

	remove := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		remove[id] = true
	}
	var final []string
	for _, id := range snapshot.Devices {
		if !remove[id] {
			final = append(final, id)
		}
	}

	if err := s.appendSnapshot(projectID, user, final, nil, ""); err != nil {
		return err
	}

	if len(final) == len(snapshot.Devices) {
		// happens with invalid ids, or when a concurrent removal of the
		// same devices already won
		return fmt.Errorf("chosen devices %v do not exist", deviceIDs)
	}
	return nil
}

// CopyDeviceValues copies the named attributes of a device (identified by
// fc) from one project to another, producing a new record in the
// destination project. Structural fields shared by all devices cannot be
// copied, and the destination record must validate before anything is
// written.
func (s *Service) CopyDeviceValues(user, fromProjectID, toProjectID, fc string, attrNames []string) (model.Device, error) {
	if len(attrNames) == 0 {
		return nil, fmt.Errorf("at least one attribute was expected")
	}

	fromDevice, err := s.DeviceByFC(fromProjectID, fc)
	if err != nil {
		return nil, fmt.Errorf("can't copy a value from a source device: %w", err)
	}

	project, err := s.db.GetProject(toProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("destination project %s was not found", toProjectID)
	}
	mayEdit, err := s.userMayEdit(user, project)
	if err != nil {
		return nil, err
	}
	if !mayEdit {
		return nil, fmt.Errorf("insufficient permission for copying device values to a destination project '%s'", project.Name)
	}

	toDevice, err := s.DeviceByFC(toProjectID, fc)
	if err != nil {
		return nil, fmt.Errorf("can't copy a value from a destination device: %w", err)
	}

	if attrNames[0] == "ALL" {
		return nil, fmt.Errorf("'ALL' copy function is not yet supported: please specify all fields manually")
	}

	var invalid []string
	for name := range validate.CommonFields {
		if contains(attrNames, name) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, fmt.Errorf("found invalid keys that should not be copied: %v", invalid)
	}

	now := s.clock.Now()
	updated := toDevice.Clone()
	var changelog []model.ChangeEntry
	seen := make(map[string]bool, len(attrNames))
	for _, name := range attrNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		value, ok := fromDevice[name]
		if !ok {
			return nil, fmt.Errorf("invalid attribute '%s': attribute does not exist in source device", name)
		}
		changelog = append(changelog, model.ChangeEntry{
			DeviceID: toDevice.ID(),
			FC:       fc,
			Project:  project.Name,
			Field:    name,
			Previous: updated[name],
			Value:    value,
			User:     user,
			Time:     now,
		})
		updated[name] = value
	}

	if msg := validate.Device(updated); msg != "" {
		return nil, fmt.Errorf("failed to copy values: destination device validation error: %s", msg)
	}

	newID, err := s.createDevice(toProjectID, updated, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create an updated device with new values: %w", err)
	}

	snapshot, err := s.db.RecentSnapshot(toProjectID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("failed to create a new project snapshot: snapshot does not exist for %s", toProjectID)
	}
	var devices []string
	for _, id := range snapshot.Devices {
		if id != toDevice.ID() {
			devices = append(devices, id)
		}
	}
	devices = append(devices, newID)
	if err := s.appendSnapshot(toProjectID, user, devices, changelog, ""); err != nil {
		return nil, err
	}

	return s.db.GetDevice(newID)
}

// ProjectDevices returns the current device set of a project as an
// fc-to-record map. A project without a snapshot yields an empty map.
func (s *Service) ProjectDevices(projectID string) (map[string]model.Device, error) {
	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return map[string]model.Device{}, nil
	}
	devices, err := s.db.GetDevices(snapshot.Devices)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Device, len(devices))
	for _, d := range devices {
		out[d.FC()] = d
	}
	return out, nil
}

// GetDevice returns one device record by id, or nil when absent.
func (s *Service) GetDevice(deviceID string) (model.Device, error) {
	return s.db.GetDevice(deviceID)
}

// DeviceByFC returns the current record of the device with the given fc
// name in a project.
func (s *Service) DeviceByFC(projectID, fc string) (model.Device, error) {
	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("project %s doesn't exist or it doesn't have any device data", projectID)
	}
	device, err := s.db.FindDeviceByFC(snapshot.Devices, fc)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("device %s was not found in a project %s", fc, projectID)
	}
	return device, nil
}

// DeviceIDByFC returns the id of the newest record created under the given
// project with the given fc name, or "" when there is none.
func (s *Service) DeviceIDByFC(projectID, fc string) (string, error) {
	return s.db.FindDeviceIDByFC(projectID, fc)
}

// FCNames returns the fc names of the master project's current device set,
// used for autocompleting names when creating a new device.
func (s *Service) FCNames() ([]string, error) {
	master, err := s.MasterProject()
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, nil
	}
	snapshot, err := s.db.RecentSnapshot(master.ID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}
	devices, err := s.db.GetDevices(snapshot.Devices)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.FC())
	}
	return names, nil
}

// AddComment appends a comment to the front of a device's discussion
// thread. Owners and editors may always comment; approvers only while the
// project is submitted; admins as a fallback.
func (s *Service) AddComment(user, projectID, deviceID, text string) error {
	if text == "" {
		return fmt.Errorf("comment should not be empty")
	}

	project, err := s.db.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return fmt.Errorf("project %s does not exist", projectID)
	}

	allowed := user == project.Owner || contains(project.Editors, user)
	if !allowed && project.Status == model.StatusSubmitted {
		allowed = contains(project.Approvers, user)
	}
	if !allowed {
		allowed, err = s.isAdmin(user)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("you are not allowed to comment on a device within a project '%s'", project.Name)
	}

	snapshot, err := s.db.RecentSnapshot(projectID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fmt.Errorf("no snapshot found for project id %s", projectID)
	}
	if !contains(snapshot.Devices, deviceID) {
		return fmt.Errorf("no device with ID %s exists in project %s", deviceID, project.Name)
	}

	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("device with id %s does not exist", deviceID)
	}

	comment := model.Comment{
		ID:      s.idgen.New(),
		Author:  user,
		Comment: text,
		Created: s.clock.Now(),
	}
	discussion := append([]model.Comment{comment}, device.Discussion()...)
	if err := s.db.SetDeviceDiscussion(deviceID, discussion); err != nil {
		return fmt.Errorf("unable to insert comment for device %s in project %s: %w", deviceID, projectID, err)
	}
	return nil
}

// DeleteComment removes one comment from a device's discussion thread. The
// comment author and the project owner may always delete; admins as a
// fallback. The project must still be in a development or submitted state.
func (s *Service) DeleteComment(user, projectID, deviceID, commentID string) error {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("device with id %s does not exist", deviceID)
	}

	project, err := s.db.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return fmt.Errorf("project %s does not exist", projectID)
	}
	if project.Status != model.StatusDevelopment && project.Status != model.StatusSubmitted {
		return fmt.Errorf("comment %s could not be deleted: project '%s' is not in a development or submitted state (current state = %s)", commentID, project.Name, project.Status)
	}

	discussion := device.Discussion()
	var target *model.Comment
	for i := range discussion {
		if discussion[i].ID == commentID {
			target = &discussion[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("comment %s could not be deleted as it does not exist for a device %s", commentID, deviceID)
	}

	allowed := target.Author == user || project.Owner == user
	if !allowed {
		allowed, err = s.isAdmin(user)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("you are not allowed to delete comment %s", commentID)
	}

	remaining := make([]model.Comment, 0, len(discussion)-1)
	for _, c := range discussion {
		if c.ID != commentID {
			remaining = append(remaining, c)
		}
	}
	return s.db.SetDeviceDiscussion(deviceID, remaining)
}

func sortedKeys(d model.Device) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
