package registry

// Status is a DeviceRecord's presence state as understood by the remote
// registry.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusUnknown Status = "unknown"
)

// DeviceRecord mirrors the remote registry's device document.
type DeviceRecord struct {
	MAC                 string  `json:"macAddress"`
	Name                *string `json:"name,omitempty"`
	FirstName           *string `json:"firstName,omitempty"`
	LastName            *string `json:"lastName,omitempty"`
	Status              Status  `json:"status"`
	PendingRegistration bool    `json:"pendingRegistration"`
	GracePeriodEnd      *int64  `json:"gracePeriodEnd,omitempty"`
	ConnectedSince      *int64  `json:"connectedSince,omitempty"`
}

// CleanupResult is devices:cleanupExpiredGracePeriods's return shape.
type CleanupResult struct {
	DeletedCount int      `json:"deletedCount"`
	DeletedMacs  []string `json:"deletedMacs"`
}
