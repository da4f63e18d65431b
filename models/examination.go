package models

import (
	"github.com/go-ozzo/ozzo-validation"
)

// SubjectExamination is an examination as listed for a subject in a study.
type SubjectExamination struct {
	ID              int64  `json:"id"`
	ExaminationDate string `json:"examinationDate"`
	Comment         string `json:"comment"`
}

// Examination is an examination to be created for the import.
type Examination struct {
	ID              int64   `json:"id,omitempty"`
	Study           *IdName `json:"study"`
	Center          *IdName `json:"center"`
	Subject         *IdName `json:"subject"`
	ExaminationDate string  `json:"examinationDate"`
	Comment         string  `json:"comment"`
}

// NiftiConverter is a DICOM to NIfTI conversion tool known to the import service.
type NiftiConverter struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// Validate validates Examination struct and returns validation errors.
func (e *Examination) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Study, validation.Required),
		validation.Field(&e.Center, validation.Required),
		validation.Field(&e.Subject, validation.Required),
	)
}
