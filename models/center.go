package models

import (
	"github.com/go-ozzo/ozzo-validation"
)

// Center is an acquisition center and the equipment it owns.
type Center struct {
	ID                    int64                   `json:"id"`
	Name                  string                  `json:"name"`
	AcquisitionEquipments []*AcquisitionEquipment `json:"acquisitionEquipments"`
	StudyCenterList       []*StudyCenter          `json:"studyCenterList,omitempty"`

	Compatible bool `json:"compatible"`
}

// AcquisitionEquipment is a registered imaging device of a center.
type AcquisitionEquipment struct {
	ID                int64              `json:"id"`
	SerialNumber      string             `json:"serialNumber"`
	ManufacturerModel *ManufacturerModel `json:"manufacturerModel"`
	Center            *IdName            `json:"center,omitempty"`

	Compatible bool `json:"compatible"`
}

// ManufacturerModel is the model of an equipment.
type ManufacturerModel struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Manufacturer *Manufacturer `json:"manufacturer"`
}

// Manufacturer is an equipment manufacturer.
type Manufacturer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ModelName returns the model name, empty when unknown.
func (e *AcquisitionEquipment) ModelName() string {
	if e.ManufacturerModel == nil {
		return ""
	}
	return e.ManufacturerModel.Name
}

// ManufacturerName returns the manufacturer name, empty when unknown.
func (e *AcquisitionEquipment) ManufacturerName() string {
	if e.ManufacturerModel == nil || e.ManufacturerModel.Manufacturer == nil {
		return ""
	}
	return e.ManufacturerModel.Manufacturer.Name
}

// Validate validates Center struct and returns validation errors.
func (c *Center) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Name, validation.Required),
	)
}

// Validate validates AcquisitionEquipment struct and returns validation errors.
func (e *AcquisitionEquipment) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.ManufacturerModel, validation.Required),
	)
}
