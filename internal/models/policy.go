// internal/models/policy.go
package models

// CancellationPolicy thresholds are hours before the booking start.
type CancellationPolicy struct {
	OrganizationID        int64 `json:"organizationId"`
	FreeCancellationHours int   `json:"freeCancellationHours"`
	PartialRefundHours    int   `json:"partialRefundHours"`
	PartialRefundPercent  int   `json:"partialRefundPercent"`
	NoRefundHours         int   `json:"noRefundHours"`
}

func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		FreeCancellationHours: 24,
		PartialRefundHours:    12,
		PartialRefundPercent:  50,
		NoRefundHours:         0,
	}
}

type OrganizationSettings struct {
	OrganizationID        int64 `json:"organizationId"`
	SameDayBookingEnabled bool  `json:"sameDayBookingEnabled"`
	MinNoticeHours        int   `json:"minNoticeHours"`
	MaxAdvanceDays        int   `json:"maxAdvanceDays"`
	RequiresApproval      bool  `json:"requiresApproval"`
}

// DefaultOrganizationSettings applies when an organization has no settings row.
func DefaultOrganizationSettings(organizationID int64) OrganizationSettings {
	return OrganizationSettings{
		OrganizationID:        organizationID,
		SameDayBookingEnabled: true,
	}
}
