package models

import (
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AccountModel is the persistence model for the tenant root
type AccountModel struct {
	BaseModel
	Name     string `gorm:"type:varchar(200);not null"`
	IsActive bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *agency.Account {
	return &agency.Account{ID: m.ID, Name: m.Name, IsActive: m.IsActive}
}

// AgencyModel is the persistence model for an agency
type AgencyModel struct {
	BaseModel
	AccountID           uuid.UUID         `gorm:"type:uuid;not null;index"`
	ParentAgencyID      *uuid.UUID        `gorm:"type:uuid;index"`
	Name                string            `gorm:"type:varchar(200);not null"`
	IsActive            bool              `gorm:"not null;default:true"`
	CommissionStructure datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (AgencyModel) TableName() string {
	return "agencies"
}

// ToDomain converts the persistence model to a domain Agency
func (m *AgencyModel) ToDomain() *agency.Agency {
	return &agency.Agency{
		BaseEntity:          m.BaseModel.ToDomain(),
		AccountID:           m.AccountID,
		ParentAgencyID:      m.ParentAgencyID,
		Name:                m.Name,
		IsActive:            m.IsActive,
		CommissionStructure: plainMap(m.CommissionStructure),
	}
}

// AgencyModelFromDomain creates a persistence model from a domain Agency
func AgencyModelFromDomain(a *agency.Agency) *AgencyModel {
	m := &AgencyModel{
		AccountID:      a.AccountID,
		ParentAgencyID: a.ParentAgencyID,
		Name:           a.Name,
		IsActive:       a.IsActive,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	if a.CommissionStructure != nil {
		m.CommissionStructure = datatypes.JSONMap(a.CommissionStructure)
	}
	return m
}

// OfferLetterModel is the persistence model for an offer letter
type OfferLetterModel struct {
	BaseModel
	AccountID uuid.UUID `gorm:"type:uuid;not null;index"`
	AgencyID  uuid.UUID `gorm:"type:uuid;not null;index"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;index"`
	IsActive  bool      `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (OfferLetterModel) TableName() string {
	return "offer_letters"
}

// ToDomain converts the persistence model to a domain OfferLetter
func (m *OfferLetterModel) ToDomain() *agency.OfferLetter {
	return &agency.OfferLetter{
		ID:        m.ID,
		AccountID: m.AccountID,
		AgencyID:  m.AgencyID,
		StudentID: m.StudentID,
		IsActive:  m.IsActive,
	}
}
