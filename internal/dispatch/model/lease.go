package model

import "time"

// SweepLease is a self-lease row that keeps each background sweep down to at
// most one running instance across the process (and across accidental
// duplicate deployments). A sweep acquires its named lease for one period and
// skips the round when the lease is held elsewhere.
type SweepLease struct {
	Name      string    `gorm:"type:varchar(64);column:name;not null;primaryKey" json:"name"`
	Holder    string    `gorm:"type:varchar(128);column:holder;not null" json:"holder"`
	ExpiresAt time.Time `gorm:"type:timestamptz;column:expires_at;not null" json:"expiresAt"`
}

func (l *SweepLease) TableName() string {
	return "sweep_leases"
}
