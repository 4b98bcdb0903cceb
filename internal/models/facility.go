package models

import "time"

// FacilityKind classifies a healthcare facility.
type FacilityKind string

const (
	FacilityHospital FacilityKind = "HOSPITAL"
	FacilityClinic   FacilityKind = "CLINIC"
	FacilityLab      FacilityKind = "LAB"
	FacilityPharmacy FacilityKind = "PHARMACY"
)

// Facility represents a managed healthcare facility.
type Facility struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Code      string       `db:"code" json:"code"`
	Kind      FacilityKind `db:"kind" json:"kind"`
	Address   string       `db:"address" json:"address"`
	Phone     string       `db:"phone" json:"phone,omitempty"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// FacilityFilter captures filtering criteria for listing facilities.
type FacilityFilter struct {
	Kind     *FacilityKind
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
