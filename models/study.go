package models

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/go-ozzo/ozzo-validation"
)

// StudyDicom is a DICOM study of an imported patient.
type StudyDicom struct {
	StudyInstanceUID string        `json:"studyInstanceUID" dicom:"StudyInstanceUID"`
	StudyID          string        `json:"studyID" dicom:"StudyID"`
	StudyDate        string        `json:"studyDate" dicom:"StudyDate"`
	StudyDescription string        `json:"studyDescription" dicom:"StudyDescription"`
	Series           []*SerieDicom `json:"series"`
}

func (s *StudyDicom) GetObjectIdFieldTag() tag.Tag {
	return tag.StudyInstanceUID
}

// Validate validates StudyDicom struct and returns validation errors.
func (s *StudyDicom) Validate() error {
	if s == nil {
		return errNilStudy
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.StudyInstanceUID, validation.Required),
		validation.Field(&s.Series),
	)
}

// Clone returns a deep copy of the study.
func (s *StudyDicom) Clone() *StudyDicom {
	if s == nil {
		return nil
	}
	c := *s
	c.Series = make([]*SerieDicom, len(s.Series))
	for i, serie := range s.Series {
		c.Series[i] = serie.Clone()
	}
	return &c
}

// Study is a research study as served by the studies microservice.
type Study struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	StudyCenterList []*StudyCenter `json:"studyCenterList"`

	// Compatible is computed for the current import and never sent back.
	Compatible bool `json:"compatible"`
}

// StudyCenter associates a study with a center.
type StudyCenter struct {
	ID     int64   `json:"id,omitempty"`
	Center *Center `json:"center"`
	Study  *IdName `json:"study,omitempty"`
}

// Validate validates Study struct and returns validation errors.
func (s *Study) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Name, validation.Required),
	)
}
