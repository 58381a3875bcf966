package core

// Notifier delivers user-facing notifications for project lifecycle
// events. Event methods are fire-and-forget: delivery failures are the
// implementation's problem (log and move on), never the caller's.
type Notifier interface {
	// ValidateIdentity reports whether the given username or email
	// belongs to a real account.
	ValidateIdentity(usernameOrEmail string) bool

	ProjectSubmitted(editors []string, projectName, projectID string)
	ApproversAdded(approvers []string, projectName, projectID string)
	SuperApproversAdded(approvers []string, projectName, projectID string)
	ApproversRemoved(approvers []string, projectName, projectID string)
	ApproverListChanged(editors []string, projectName, projectID string, approvers []string)
	EditorsAdded(editors []string, projectName, projectID string)
	EditorsRemoved(editors []string, projectName, projectID string)
	ProjectApproved(users []string, projectName, projectID string)
	ProjectRejected(users []string, projectName, projectID string, rejectedBy, reason string)
}

// NopNotifier validates every identity and sends nothing. Use for tests
// and embedded deployments without a delivery channel.
type NopNotifier struct{}

func NewNopNotifier() *NopNotifier { return &NopNotifier{} }

func (*NopNotifier) ValidateIdentity(string) bool { return true }

func (*NopNotifier) ProjectSubmitted([]string, string, string)                {}
func (*NopNotifier) ApproversAdded([]string, string, string)                  {}
func (*NopNotifier) SuperApproversAdded([]string, string, string)             {}
func (*NopNotifier) ApproversRemoved([]string, string, string)                {}
func (*NopNotifier) ApproverListChanged([]string, string, string, []string)   {}
func (*NopNotifier) EditorsAdded([]string, string, string)                    {}
func (*NopNotifier) EditorsRemoved([]string, string, string)                  {}
func (*NopNotifier) ProjectApproved([]string, string, string)                 {}
func (*NopNotifier) ProjectRejected([]string, string, string, string, string) {}
