package models

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/go-ozzo/ozzo-validation"
)

// SerieDicom is a DICOM series; Selected marks it for import.
type SerieDicom struct {
	SeriesInstanceUID string          `json:"seriesInstanceUID" dicom:"SeriesInstanceUID"`
	SeriesNumber      string          `json:"seriesNumber" dicom:"SeriesNumber"`
	SeriesDescription string          `json:"seriesDescription" dicom:"SeriesDescription"`
	SeriesDate        string          `json:"seriesDate" dicom:"SeriesDate"`
	Modality          string          `json:"modality" dicom:"Modality"`
	ProtocolName      string          `json:"protocolName" dicom:"ProtocolName"`
	NumberOfInstances int             `json:"numberOfSeriesRelatedInstances"`
	Selected          bool            `json:"selected"`
	Equipment         *EquipmentDicom `json:"equipment"`
	Images            []*ImageDicom   `json:"images"`
}

func (s *SerieDicom) GetObjectIdFieldTag() tag.Tag {
	return tag.SeriesInstanceUID
}

// EquipmentDicom is the fingerprint of the device that acquired a series.
type EquipmentDicom struct {
	Manufacturer          string `json:"manufacturer" dicom:"Manufacturer"`
	ManufacturerModelName string `json:"manufacturerModelName" dicom:"ManufacturerModelName"`
	DeviceSerialNumber    string `json:"deviceSerialNumber" dicom:"DeviceSerialNumber"`
}

func (e *EquipmentDicom) GetObjectIdFieldTag() tag.Tag {
	return tag.DeviceSerialNumber
}

// Validate validates SerieDicom struct and returns validation errors.
func (s *SerieDicom) Validate() error {
	if s == nil {
		return errNilSerie
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.SeriesInstanceUID, validation.Required),
		validation.Field(&s.Images),
	)
}

// Clone returns a deep copy of the series.
func (s *SerieDicom) Clone() *SerieDicom {
	if s == nil {
		return nil
	}
	c := *s
	if s.Equipment != nil {
		e := *s.Equipment
		c.Equipment = &e
	}
	c.Images = make([]*ImageDicom, len(s.Images))
	for i, img := range s.Images {
		im := *img
		c.Images[i] = &im
	}
	return &c
}
