package model

// APIClient is an entity service (inbound, outbound, production, ...) allowed
// to push work into the sync queue with an API key.
type APIClient struct {
	ID      uint64 `gorm:"primaryKey"`
	AppID   string `gorm:"size:64;not null"`
	APIKey  string `gorm:"size:64;not null"`
	Service string `gorm:"size:32;default:inbound"`
	Status  int    `gorm:"default:1"`
}
