package notify

import (
	"fmt"

	"github.com/go-resty/resty/v2"

	"confdb/internal/config"
	"confdb/internal/core"
)

// WebhookNotifier posts every notification event as JSON to a single
// endpoint, leaving the actual delivery (chat, email, pager) to whatever
// sits behind the hook.
type WebhookNotifier struct {
	url    string
	logger core.Logger
	client *resty.Client
}

var _ core.Notifier = (*WebhookNotifier)(nil)

type webhookEvent struct {
	Event       string   `json:"event"`
	ProjectName string   `json:"project_name"`
	ProjectID   string   `json:"project_id"`
	Users       []string `json:"users,omitempty"`
	Approvers   []string `json:"approvers,omitempty"`
	RejectedBy  string   `json:"rejected_by,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func NewWebhookNotifier(cfg config.NotifierConfig, logger core.Logger) (*WebhookNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook url should not be empty")
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		logger: logger,
		client: resty.New(),
	}, nil
}

// ValidateIdentity always succeeds: the webhook has no account backend.
func (n *WebhookNotifier) ValidateIdentity(usernameOrEmail string) bool {
	return true
}

func (n *WebhookNotifier) ProjectSubmitted(editors []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "project_submitted", ProjectName: projectName, ProjectID: projectID, Users: editors})
}

func (n *WebhookNotifier) ApproversAdded(approvers []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "approvers_added", ProjectName: projectName, ProjectID: projectID, Users: approvers})
}

func (n *WebhookNotifier) SuperApproversAdded(approvers []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "super_approvers_added", ProjectName: projectName, ProjectID: projectID, Users: approvers})
}

func (n *WebhookNotifier) ApproversRemoved(approvers []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "approvers_removed", ProjectName: projectName, ProjectID: projectID, Users: approvers})
}

func (n *WebhookNotifier) ApproverListChanged(editors []string, projectName, projectID string, approvers []string) {
	n.post(webhookEvent{Event: "approver_list_changed", ProjectName: projectName, ProjectID: projectID, Users: editors, Approvers: approvers})
}

func (n *WebhookNotifier) EditorsAdded(editors []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "editors_added", ProjectName: projectName, ProjectID: projectID, Users: editors})
}

func (n *WebhookNotifier) EditorsRemoved(editors []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "editors_removed", ProjectName: projectName, ProjectID: projectID, Users: editors})
}

func (n *WebhookNotifier) ProjectApproved(users []string, projectName, projectID string) {
	n.post(webhookEvent{Event: "project_approved", ProjectName: projectName, ProjectID: projectID, Users: users})
}

func (n *WebhookNotifier) ProjectRejected(users []string, projectName, projectID string, rejectedBy, reason string) {
	n.post(webhookEvent{Event: "project_rejected", ProjectName: projectName, ProjectID: projectID, Users: users, RejectedBy: rejectedBy, Reason: reason})
}

func (n *WebhookNotifier) post(event webhookEvent) {
	go func() {
		resp, err := n.client.R().SetBody(event).Post(n.url)
		if err != nil {
			n.logger.Error("failed to post a webhook event", "event", event.Event, "error", err)
			return
		}
		if resp.IsError() {
			n.logger.Error("webhook endpoint returned an error", "event", event.Event, "status", resp.StatusCode())
		}
	}()
}
