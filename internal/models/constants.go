package models

// Роли пользователей
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// ProjectStatus константы статусов проектов
const (
	ProjectStatusDraft      = "draft"
	ProjectStatusOpen       = "open"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusCancelled  = "cancelled"
)

// Категории рекламных услуг
const (
	CategorySEO            = "seo"
	CategorySEM            = "sem"
	CategorySocialMedia    = "social_media"
	CategoryContent        = "content"
	CategoryBranding       = "branding"
	CategoryPPC            = "ppc"
	CategoryEmailMarketing = "email_marketing"
	CategoryInfluencer     = "influencer"
	CategoryAnalytics      = "analytics"
	CategoryOther          = "other"
)

// InvitationStatus константы статусов приглашений
const (
	InvitationStatusPending        = "pending"
	InvitationStatusOfferSubmitted = "offer_submitted"
	InvitationStatusAccepted       = "accepted"
	InvitationStatusRejected       = "rejected"
	InvitationStatusExpired        = "expired"
)

// ProposalStatus константы статусов предложений
const (
	ProposalStatusPending     = "pending"
	ProposalStatusNegotiating = "negotiating"
	ProposalStatusAccepted    = "accepted"
	ProposalStatusRejected    = "rejected"
	ProposalStatusWithdrawn   = "withdrawn"
)

// ContractStatus константы статусов контрактов
const (
	ContractStatusActive    = "active"
	ContractStatusCompleted = "completed"
	ContractStatusCancelled = "cancelled"
)

// MilestoneStatus константы статусов этапов
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusFunded    = "funded"
	MilestoneStatusSubmitted = "submitted"
	MilestoneStatusApproved  = "approved"
	MilestoneStatusPaid      = "paid"
	MilestoneStatusCancelled = "cancelled"
)

// InvoiceStatus константы статусов счетов
const (
	InvoiceStatusIssued    = "issued"
	InvoiceStatusApproved  = "approved"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Типы транзакций
const (
	TransactionTypeDeposit = "deposit"
	TransactionTypeLock    = "lock"
	TransactionTypeRelease = "release"
	TransactionTypeRefund  = "refund"
	TransactionTypePayout  = "payout"
	TransactionTypeFee     = "fee"
)

// Статусы транзакций
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// ValidRoles роли, доступные при регистрации.
var ValidRoles = map[string]struct{}{
	RoleClient:     {},
	RoleFreelancer: {},
}

// ValidProjectStatuses список валидных статусов проектов
var ValidProjectStatuses = map[string]struct{}{
	ProjectStatusDraft:      {},
	ProjectStatusOpen:       {},
	ProjectStatusInProgress: {},
	ProjectStatusCompleted:  {},
	ProjectStatusCancelled:  {},
}

// ValidCategories список категорий услуг
var ValidCategories = map[string]struct{}{
	CategorySEO:            {},
	CategorySEM:            {},
	CategorySocialMedia:    {},
	CategoryContent:        {},
	CategoryBranding:       {},
	CategoryPPC:            {},
	CategoryEmailMarketing: {},
	CategoryInfluencer:     {},
	CategoryAnalytics:      {},
	CategoryOther:          {},
}

// ValidInvoiceStatuses список валидных статусов счетов
var ValidInvoiceStatuses = map[string]struct{}{
	InvoiceStatusIssued:    {},
	InvoiceStatusApproved:  {},
	InvoiceStatusPaid:      {},
	InvoiceStatusOverdue:   {},
	InvoiceStatusCancelled: {},
}
