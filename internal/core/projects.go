package core

import (
	"fmt"
	"sort"
	"strings"

	"confdb/internal/model"
)

// CreateProject creates a new project owned by the given user, with an
// initial empty snapshot. Editors are validated before the project record
// is written so a bad editor list never leaves a half-created project.
func (s *Service) CreateProject(owner, name, description string, editors []string) (*model.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name could not be empty")
	}

	if len(editors) > 0 {
		if err := s.validateEditors(editors); err != nil {
			return nil, fmt.Errorf("invalid project editors: %w", err)
		}
	}

	existing, err := s.db.FindProjectByName(name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing project: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("project with name %s already exists", name)
	}

	project := &model.Project{
		ID:           s.idgen.New(),
		Name:         name,
		Description:  description,
		Owner:        owner,
		Status:       model.StatusDevelopment,
		CreationTime: s.clock.Now(),
	}
	if err := s.db.InsertProject(project); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if len(editors) > 0 {
		if err := s.UpdateProjectDetails(owner, project.ID, ProjectUpdate{Editors: editors}); err != nil {
			return nil, err
		}
	}

	if err := s.appendSnapshot(project.ID, owner, []string{}, nil, ""); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "name", name, "owner", owner)
	return s.db.GetProject(project.ID)
}

// validateEditors checks that every prospective editor is a real account
// and not a super approver. Anyone with an account may be an editor.
func (s *Service) validateEditors(editors []string) error {
	superApprovers, err := s.roles.UsersWithPrivilege(PrivilegeSuperApprover)
	if err != nil {
		return fmt.Errorf("resolving super approvers: %w", err)
	}
	var invalid []string
	for _, user := range editors {
		if contains(superApprovers, user) {
			return fmt.Errorf("user '%s' is a super approver and can't be an editor", user)
		}
		if !s.notifier.ValidateIdentity(user) {
			invalid = append(invalid, user)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid editor emails/accounts: [%s]", strings.Join(invalid, ", "))
	}
	return nil
}

// CloneProject creates a new project whose first snapshot carries the
// current device membership of the source project. Device records are
// shared between the two projects until either side edits one, at which
// point copy-on-write takes over.
func (s *Service) CloneProject(user, sourceID, name, description string, editors []string) (*model.Project, error) {
	superApprovers, err := s.roles.UsersWithPrivilege(PrivilegeSuperApprover)
	if err != nil {
		return nil, fmt.Errorf("resolving super approvers: %w", err)
	}
	if contains(superApprovers, user) {
		return nil, fmt.Errorf("super approver is not allowed to clone the project")
	}
	for _, e := range editors {
		if contains(superApprovers, e) {
			return nil, fmt.Errorf("selected editor %s is also a super approver: super approvers are not allowed to be project editors", e)
		}
	}

	existing, err := s.db.FindProjectByName(name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing project: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("project with name %s already exists", name)
	}

	created, err := s.CreateProject(user, name, description, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new project: %w", err)
	}

	source, err := s.RecentSnapshot(sourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("project %s to clone from is not found, or has no values to copy", sourceID)
	}
	if err := s.appendSnapshot(created.ID, user, source.Devices, nil, ""); err != nil {
		return nil, err
	}

	if len(editors) > 0 {
		if err := s.UpdateProjectDetails(user, created.ID, ProjectUpdate{Editors: editors}); err != nil {
			// the project itself was cloned fine, so we keep it and only
			// report the editor problem in the log
			s.logger.Error("failed to update editors of a cloned project", "project", created.ID, "error", err)
			return created, nil
		}
	}

	return s.db.GetProject(created.ID)
}

// ProjectUpdate is a partial edit of project metadata. Nil fields are left
// untouched; Editors replaces the whole editor list.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Editors     []string
}

func (u ProjectUpdate) empty() bool {
	return u.Name == nil && u.Description == nil && u.Editors == nil
}

// UpdateProjectDetails updates a project's name, description or editor
// list. Only the owner or a current editor may do this. Editors are
// validated and stored as usernames, since permission checks compare
// usernames rather than whatever email form the caller sent.
func (s *Service) UpdateProjectDetails(user, projectID string, update ProjectUpdate) error {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return fmt.Errorf("project %s does not exist", projectID)
	}

	if user != project.Owner && !contains(project.Editors, user) {
		return fmt.Errorf("you have no permissions to edit a project '%s'", project.Name)
	}

	if update.empty() {
		return fmt.Errorf("project update should not be empty")
	}

	oldEditors := project.Editors
	if update.Name != nil {
		if *update.Name == "" {
			return fmt.Errorf("name cannot be empty")
		}
		project.Name = *update.Name
	}
	if update.Description != nil {
		if *update.Description == "" {
			return fmt.Errorf("description cannot be empty")
		}
		project.Description = *update.Description
	}
	if update.Editors != nil {
		if err := s.validateEditors(update.Editors); err != nil {
			return err
		}
		project.Editors = usernamesFromIdentities(update.Editors)
	}

	if err := s.db.UpdateProject(project); err != nil {
		return fmt.Errorf("updating project %s: %w", projectID, err)
	}

	if update.Editors != nil {
		diff := diffStrings(oldEditors, project.Editors)
		if len(diff.New) > 0 {
			s.notifier.EditorsAdded(diff.New, project.Name, project.ID)
		}
		if len(diff.Removed) > 0 {
			s.notifier.EditorsRemoved(diff.Removed, project.Name, project.ID)
		}
	}
	return nil
}

// GetProject returns a project by id, or nil when it does not exist.
func (s *Service) GetProject(id string) (*model.Project, error) {
	return s.db.GetProject(id)
}

// ProjectByName returns a project by its unique name, or nil when no
// project carries it.
func (s *Service) ProjectByName(name string) (*model.Project, error) {
	return s.db.FindProjectByName(name)
}

// MasterProject returns the master project, or nil if it has not been
// initialized or is not in the approved state.
func (s *Service) MasterProject() (*model.Project, error) {
	project, err := s.db.FindProjectByName(model.MasterProjectName)
	if err != nil {
		return nil, err
	}
	if project == nil || project.Status != model.StatusApproved {
		return nil, nil
	}
	return project, nil
}

// AllProjects lists projects visible to the given user, newest first.
// Admins see everything; everyone else sees the master project plus the
// projects where they are owner, editor or approver, with hidden projects
// excluded.
func (s *Service) AllProjects(user string) ([]*model.Project, error) {
	projects, err := s.db.AllProjects()
	if err != nil {
		return nil, err
	}

	admin, err := s.isAdmin(user)
	if err != nil {
		return nil, err
	}
	if admin {
		return projects, nil
	}

	var visible []*model.Project
	for _, p := range projects {
		if p.Status == model.StatusHidden {
			continue
		}
		relevant := p.Name == model.MasterProjectName ||
			p.Owner == user ||
			contains(p.Editors, user) ||
			contains(p.Approvers, user)
		if relevant {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// ProjectsForUser returns the projects where the user is the owner or an
// editor.
func (s *Service) ProjectsForUser(user string) ([]*model.Project, error) {
	projects, err := s.db.AllProjects()
	if err != nil {
		return nil, err
	}
	var out []*model.Project
	for _, p := range projects {
		if p.Owner == user || contains(p.Editors, user) {
			out = append(out, p)
		}
	}
	return out, nil
}

// AllUsers returns every project owner and editor in the system, sorted.
func (s *Service) AllUsers() ([]string, error) {
	projects, err := s.db.AllProjects()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var users []string
	for _, p := range projects {
		for _, u := range append([]string{p.Owner}, p.Editors...) {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users, nil
}

// DeleteProject removes a project. For an admin this is a hard cascade
// (project, snapshots and tags are gone). For the owner it only hides the
// project: status becomes hidden and the name is rewritten so the original
// name is free for reuse.
func (s *Service) DeleteProject(user, projectID string) error {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return fmt.Errorf("project %s does not exist", projectID)
	}

	admin, err := s.isAdmin(user)
	if err != nil {
		return err
	}
	owner := user == project.Owner
	if !owner && !admin {
		return fmt.Errorf("you don't have permissions to delete the project %s", project.Name)
	}

	if admin {
		if err := s.db.DeleteProject(projectID); err != nil {
			return fmt.Errorf("deleting project %s: %w", projectID, err)
		}
		if err := s.db.DeleteProjectSnapshots(projectID); err != nil {
			return fmt.Errorf("deleting snapshots of project %s: %w", projectID, err)
		}
		if err := s.db.DeleteProjectTags(projectID); err != nil {
			return fmt.Errorf("deleting tags of project %s: %w", projectID, err)
		}
		s.logger.Info("project deleted", "name", project.Name, "user", user)
		return nil
	}

	project.Status = model.StatusHidden
	project.Name = "hidden_" + project.Name + "_" + s.clock.Now().Format("01/02/2006")
	if err := s.db.UpdateProject(project); err != nil {
		return fmt.Errorf("hiding project %s: %w", projectID, err)
	}
	s.logger.Info("project hidden", "name", project.Name, "user", user)
	return nil
}

// userMayEdit reports whether the user is the owner, an editor, or failing
// both, an admin.
func (s *Service) userMayEdit(user string, project *model.Project) (bool, error) {
	if user == "" {
		return false, nil
	}
	if user == project.Owner || contains(project.Editors, user) {
		return true, nil
	}
	return s.isAdmin(user)
}

func (s *Service) isAdmin(user string) (bool, error) {
	admins, err := s.roles.UsersWithPrivilege(PrivilegeAdmin)
	if err != nil {
		return false, fmt.Errorf("resolving admins: %w", err)
	}
	return contains(admins, user), nil
}

// editableProject loads a project and checks that the user may change its
// device entries: development status and edit rights.
func (s *Service) editableProject(projectID, user string) (*model.Project, error) {
	project, err := s.db.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %s does not exist", projectID)
	}
	if project.Status != model.StatusDevelopment {
		return nil, fmt.Errorf("project %s is not in a development state", project.Name)
	}
	mayEdit, err := s.userMayEdit(user, project)
	if err != nil {
		return nil, err
	}
	if !mayEdit {
		return nil, fmt.Errorf("you are not an editor and therefore can't remove the project devices")
	}
	return project, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
