package enums

// AuditAction names an audited operation. Values are free-form on purpose so
// new actions need no migration; these are the ones the service records.
type AuditAction string

const (
	AuditUserRegistered          AuditAction = "user.registered"
	AuditUserLogin               AuditAction = "user.login"
	AuditUserRoleChanged         AuditAction = "user.role_changed"
	AuditUserActiveChanged       AuditAction = "user.active_changed"
	AuditKeyAdded                AuditAction = "api_key.added"
	AuditKeyDeactivated          AuditAction = "api_key.deactivated"
	AuditKeyAssigned             AuditAction = "api_key.assigned"
	AuditPaymentVerified         AuditAction = "payment.verified"
	AuditPaymentFailed           AuditAction = "payment.failed"
	AuditSubscriptionExpired     AuditAction = "subscription.expired"
	AuditContentSubmitted        AuditAction = "content.submitted"
	AuditContentReviewed         AuditAction = "content.reviewed"
	AuditContentArchived         AuditAction = "content.archived"
	AuditPurchaseCompleted       AuditAction = "purchase.completed"
	AuditPurchaseRefunded        AuditAction = "purchase.refunded"
	AuditJobTriggered            AuditAction = "job.triggered"
	AuditOrganizationCreated     AuditAction = "organization.created"
	AuditOrganizationMemberAdded AuditAction = "organization.member_added"
)
