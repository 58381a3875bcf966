package testutil

import (
	"sync"
)

// NotificationEvent is one recorded notifier call.
type NotificationEvent struct {
	Kind        string
	Users       []string
	ProjectName string
	ProjectID   string
	Approvers   []string
	RejectedBy  string
	Reason      string
}

// RecordingNotifier captures every notification for later assertions.
// Identities listed in Invalid fail validation; everything else passes.
type RecordingNotifier struct {
	mu      sync.Mutex
	Invalid map[string]bool
	events  []NotificationEvent
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{Invalid: make(map[string]bool)}
}

// Events returns a copy of the recorded events in call order.
func (n *RecordingNotifier) Events() []NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationEvent(nil), n.events...)
}

// EventsOfKind returns recorded events with the given kind, in call order.
func (n *RecordingNotifier) EventsOfKind(kind string) []NotificationEvent {
	var out []NotificationEvent
	for _, e := range n.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (n *RecordingNotifier) record(e NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *RecordingNotifier) ValidateIdentity(usernameOrEmail string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.Invalid[usernameOrEmail]
}

func (n *RecordingNotifier) ProjectSubmitted(editors []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "project_submitted", Users: editors, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) ApproversAdded(approvers []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "approvers_added", Users: approvers, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) SuperApproversAdded(approvers []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "super_approvers_added", Users: approvers, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) ApproversRemoved(approvers []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "approvers_removed", Users: approvers, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) ApproverListChanged(editors []string, projectName, projectID string, approvers []string) {
	n.record(NotificationEvent{Kind: "approver_list_changed", Users: editors, ProjectName: projectName, ProjectID: projectID, Approvers: approvers})
}

func (n *RecordingNotifier) EditorsAdded(editors []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "editors_added", Users: editors, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) EditorsRemoved(editors []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "editors_removed", Users: editors, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) ProjectApproved(users []string, projectName, projectID string) {
	n.record(NotificationEvent{Kind: "project_approved", Users: users, ProjectName: projectName, ProjectID: projectID})
}

func (n *RecordingNotifier) ProjectRejected(users []string, projectName, projectID string, rejectedBy, reason string) {
	n.record(NotificationEvent{Kind: "project_rejected", Users: users, ProjectName: projectName, ProjectID: projectID, RejectedBy: rejectedBy, Reason: reason})
}
