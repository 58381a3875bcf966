package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"confdb/internal/model"
)

// SubmitForApproval submits a project for approval, or updates the
// approver and editor lists of an already submitted project. The stored
// approver set is the union of the explicit approvers and every super
// approver, normalized to usernames. Editors and approvers must be
// disjoint, and neither the submitter nor the owner may approve.
func (s *Service) SubmitForApproval(user, projectID string, editors, approvers []string) (*model.Project, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("cannot find project for '%s'", projectID)
	}
	if project.Status != model.StatusDevelopment && project.Status != model.StatusSubmitted {
		return nil, fmt.Errorf("project '%s' is not in development or submitted status", project.Name)
	}

	mayEdit, err := s.userMayEdit(user, project)
	if err != nil {
		return nil, err
	}
	if !mayEdit {
		return nil, fmt.Errorf("user %s is not allowed to submit a project '%s'", user, project.Name)
	}

	// the explicit approver list may be empty since super approvers are
	// always added to it
	superApprovers, err := s.roles.UsersWithPrivilege(PrivilegeSuperApprover)
	if err != nil {
		return nil, fmt.Errorf("resolving super approvers: %w", err)
	}
	approverSet := make(map[string]bool)
	for _, a := range append(append([]string{}, approvers...), superApprovers...) {
		approverSet[a] = true
	}
	approvers = make([]string, 0, len(approverSet))
	for a := range approverSet {
		approvers = append(approvers, a)
	}
	sort.Strings(approvers)

	if len(approvers) == 0 {
		return nil, fmt.Errorf("project '%s' should have at least 1 approver", project.Name)
	}
	for _, a := range approvers {
		if a == "" {
			return nil, fmt.Errorf("invalid project approver: '%s'", a)
		}
	}
	if contains(approvers, user) {
		return nil, fmt.Errorf("submitter %s is not allowed to also be a project approver", user)
	}
	if contains(approvers, project.Owner) {
		return nil, fmt.Errorf("a project owner %s is not allowed to also be a project approver", project.Owner)
	}

	// approvers and editors must be disjoint by account identity, which
	// means comparing usernames even when either side was given as email
	approverUsernames := make([]string, len(approvers))
	for i, a := range approvers {
		approverUsernames[i] = usernameOf(a)
	}
	editorUsernames := make([]string, len(editors))
	for i, e := range editors {
		editorUsernames[i] = usernameOf(e)
	}
	var multipleRoles []string
	for i, a := range approverUsernames {
		if contains(editorUsernames, a) {
			// report the identity in the form the caller sent it
			multipleRoles = append(multipleRoles, approvers[i])
		}
	}
	if len(multipleRoles) > 0 {
		return nil, fmt.Errorf("the users are not allowed to be both editors and approvers: [%s]", strings.Join(multipleRoles, ", "))
	}

	var invalidApprovers []string
	for _, a := range approvers {
		if !s.notifier.ValidateIdentity(a) {
			invalidApprovers = append(invalidApprovers, a)
		}
	}
	if len(invalidApprovers) > 0 {
		return nil, fmt.Errorf("invalid approver emails/accounts: [%s]", strings.Join(invalidApprovers, ", "))
	}

	if editors == nil {
		editors = []string{}
	}
	if err := s.UpdateProjectDetails(user, projectID, ProjectUpdate{Editors: editors}); err != nil {
		return nil, err
	}

	// permission checks run on usernames, so approvers are stored in
	// username form regardless of how they were provided
	previousStatus := project.Status
	previousApprovers := project.Approvers
	project, err = s.db.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("reloading project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("cannot find project for '%s'", projectID)
	}
	project.Status = model.StatusSubmitted
	project.Submitter = user
	project.Approvers = approverUsernames
	project.SubmittedAt = s.clock.Now()
	if err := s.db.UpdateProject(project); err != nil {
		return nil, fmt.Errorf("submitting project %s: %w", projectID, err)
	}

	approverDiff := diffStrings(previousApprovers, approvers)
	superApproverDiff := diffStrings(superApprovers, approvers)

	if len(approverDiff.Removed) > 0 {
		s.notifier.ApproversRemoved(approverDiff.Removed, project.Name, project.ID)
	}

	projectEditors := dedupUsers([]string{project.Owner}, editors)
	if previousStatus == model.StatusDevelopment {
		// first submission
		s.notifier.ProjectSubmitted(projectEditors, project.Name, project.ID)
		s.notifier.SuperApproversAdded(superApproverDiff.InBoth, project.Name, project.ID)
		s.notifier.ApproversAdded(superApproverDiff.New, project.Name, project.ID)
	} else {
		// resubmission after edits
		if len(approverDiff.New) > 0 {
			s.notifier.ApproversAdded(approverDiff.New, project.Name, project.ID)
		}
		if len(approverDiff.New) > 0 || len(approverDiff.Removed) > 0 {
			s.notifier.ApproverListChanged(projectEditors, project.Name, project.ID, approvers)
		}
	}

	s.logger.Info("project submitted", "name", project.Name, "submitter", user)
	return s.db.GetProject(projectID)
}

// Approve records one approval of a submitted project. While approvals are
// still missing it returns approved=false and the project stays submitted.
// Once every assigned approver has approved, the project's devices are
// merged into the master project, the merge is logged in the approval
// history, and the project is reset to a fresh development state.
func (s *Service) Approve(user, projectID string) (bool, *model.Project, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return false, nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return false, nil, fmt.Errorf("cannot find project for %s", projectID)
	}
	if project.Status != model.StatusSubmitted {
		return false, nil, fmt.Errorf("project %s is not in submitted status", projectID)
	}
	if project.Submitter == user {
		return false, nil, fmt.Errorf("project %s cannot be approved by its submitter %s: please ask someone other than the submitter to approve the project", project.Name, user)
	}
	// super approvers are stored as project approvers, so one membership
	// check covers both
	if !contains(project.Approvers, user) {
		return false, nil, fmt.Errorf("user %s is not allowed to approve the project", user)
	}
	if contains(project.ApprovedBy, user) {
		return false, nil, fmt.Errorf("user %s has already approved this project", user)
	}

	project.ApprovedBy = append([]string{user}, project.ApprovedBy...)
	if err := s.db.UpdateProject(project); err != nil {
		return false, nil, fmt.Errorf("recording approval of project %s: %w", projectID, err)
	}

	for _, approver := range project.Approvers {
		if !contains(project.ApprovedBy, approver) {
			// approval is unanimous: still waiting for the rest
			updated, err := s.db.GetProject(projectID)
			return false, updated, err
		}
	}

	// every assigned approver has approved, merge into the master project
	master, err := s.db.FindProjectByName(model.MasterProjectName)
	if err != nil {
		return false, nil, err
	}
	if master == nil {
		return false, nil, fmt.Errorf("failed to find an approved project: this is a programming bug")
	}
	master.Owner = ""
	master.Status = model.StatusApproved
	master.ApprovedAt = s.clock.Now()
	if err := s.db.UpdateProject(master); err != nil {
		return false, nil, fmt.Errorf("updating master project: %w", err)
	}

	projectDevices, err := s.ProjectDevices(projectID)
	if err != nil {
		return false, nil, err
	}
	devices := make([]model.Device, 0, len(projectDevices))
	for _, fc := range sortedDeviceNames(projectDevices) {
		devices = append(devices, projectDevices[fc])
	}

	// the master project must not inherit submission-time discussion
	// threads, hence the discussion strip
	if _, err := s.updateDevices(user, master.ID, devices, true, true); err != nil {
		return false, nil, err
	}

	event := &model.ApprovalEvent{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Submitter: project.Submitter,
		Time:      s.clock.Now(),
	}
	if err := s.db.InsertApprovalEvent(event); err != nil {
		return false, nil, fmt.Errorf("recording approval history: %w", err)
	}

	notified := dedupUsers([]string{project.Owner}, project.Editors, project.Approvers)
	s.notifier.ProjectApproved(notified, project.Name, project.ID)

	// the approved project becomes a fresh editing surface for its next
	// revision cycle
	project.Status = model.StatusDevelopment
	project.ApprovedAt = s.clock.Now()
	project.Editors = []string{}
	project.Approvers = []string{}
	project.ApprovedBy = []string{}
	project.Notes = []string{}
	if err := s.db.UpdateProject(project); err != nil {
		return false, nil, fmt.Errorf("resetting project %s: %w", projectID, err)
	}

	s.logger.Info("project approved and merged", "name", project.Name, "approver", user)
	updated, err := s.db.GetProject(projectID)
	return true, updated, err
}

// Reject sends a submitted project back into development. The rejection
// reason is prepended to the project notes together with the author and
// timestamp.
func (s *Service) Reject(user, projectID, reason string) (*model.Project, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("cannot find project for %s", projectID)
	}
	if project.Status != model.StatusSubmitted {
		return nil, fmt.Errorf("project %s is not in submitted status", projectID)
	}

	allowed := user == project.Owner || contains(project.Editors, user) || contains(project.Approvers, user)
	if !allowed {
		allowed, err = s.isAdmin(user)
		if err != nil {
			return nil, err
		}
	}
	if !allowed {
		return nil, fmt.Errorf("user %s is not allowed to reject this project", user)
	}

	now := s.clock.Now()
	note := fmt.Sprintf("%s (%s):\n%s", user, now.Format("Jan/02/2006 15:04:05"), reason)
	project.Status = model.StatusDevelopment
	project.ApprovedBy = []string{}
	project.ApprovedAt = time.Time{}
	project.Notes = append([]string{note}, project.Notes...)
	if err := s.db.UpdateProject(project); err != nil {
		return nil, fmt.Errorf("rejecting project %s: %w", projectID, err)
	}

	notified := dedupUsers([]string{project.Owner}, project.Editors, project.Approvers)
	s.notifier.ProjectRejected(notified, project.Name, project.ID, user, reason)

	s.logger.Info("project rejected", "name", project.Name, "user", user)
	return s.db.GetProject(projectID)
}

// ApprovalRecord is one merge into the master project, joined with the
// merged project's metadata.
type ApprovalRecord struct {
	ID          string
	ProjectID   string
	ProjectName string
	Description string
	Owner       string
	Submitter   string
	Time        time.Time
}

// ApprovalHistory returns the most recent merges into the master project,
// newest first. Events whose project has since been hard-deleted are
// skipped.
func (s *Service) ApprovalHistory(limit int) ([]ApprovalRecord, error) {
	events, err := s.db.ApprovalEvents(limit)
	if err != nil {
		return nil, err
	}
	var records []ApprovalRecord
	for _, event := range events {
		project, err := s.db.GetProject(event.ProjectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			continue
		}
		records = append(records, ApprovalRecord{
			ID:          event.ID,
			ProjectID:   event.ProjectID,
			ProjectName: project.Name,
			Description: project.Description,
			Owner:       project.Owner,
			Submitter:   event.Submitter,
			Time:        event.Time,
		})
	}
	return records, nil
}

func usernameOf(identity string) string {
	if at := strings.IndexByte(identity, '@'); at >= 0 {
		return identity[:at]
	}
	return identity
}

func dedupUsers(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, u := range list {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func sortedDeviceNames(devices map[string]model.Device) []string {
	names := make([]string, 0, len(devices))
	for fc := range devices {
		names = append(names, fc)
	}
	sort.Strings(names)
	return names
}
