package storage

import (
	"time"
)

// PVModule is a persisted module nameplate record. Electrical values are the
// datasheet STC values; kv, ki and gamma_pmp are temperature coefficients in %/C.
type PVModule struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"index;not null" json:"name"`
	Voc      float64 `gorm:"not null" json:"voc"`
	Isc      float64 `gorm:"not null" json:"isc"`
	Vmp      float64 `gorm:"not null" json:"vmp"`
	Imp      float64 `gorm:"not null" json:"imp"`
	Ns       int     `gorm:"not null" json:"ns"`
	Kv       float64 `gorm:"not null" json:"kv"`
	Ki       float64 `gorm:"not null" json:"ki"`
	GammaPmp float64 `gorm:"not null" json:"gamma_pmp"`
	Celltype string  `gorm:"not null" json:"celltype"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Celltypes is the fixed set of accepted cell technologies. The same list backs
// client-side and server-side validation so the two cannot drift.
var Celltypes = []string{"monoSi", "multiSi", "polySi", "cis", "cigs", "cdte", "amorphous"}

func ValidCelltype(value string) bool {
	for _, ct := range Celltypes {
		if ct == value {
			return true
		}
	}
	return false
}
