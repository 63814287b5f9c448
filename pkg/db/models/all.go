package models

// All lists every persisted model, in dependency order. Used by AutoMigrate in
// sqlite mode and by tests.
func All() []any {
	return []any{
		&Organization{},
		&OrganizationMember{},
		&User{},
		&APIKeyPoolEntry{},
		&APIKeyAssignment{},
		&PaymentTransaction{},
		&Template{},
		&Component{},
		&ContentApproval{},
		&ItemPurchase{},
		&ShoppingCart{},
		&CartItem{},
		&AuditLog{},
		&WebhookEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
