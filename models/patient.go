package models

import (
	"errors"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/go-ozzo/ozzo-validation"
)

var (
	errNilPatient = errors.New("nil patient")
	errNilStudy   = errors.New("nil study")
	errNilSerie   = errors.New("nil series")
	errNilImage   = errors.New("nil image")
)

// PatientList is the result of an archive upload or a PACS query.
type PatientList struct {
	WorkFolder   string          `json:"workFolder"`
	FromDicomZip bool            `json:"fromDicomZip"`
	FromPacs     bool            `json:"fromPacs"`
	Patients     []*PatientDicom `json:"patients"`
}

// PatientDicom is a patient found in the imported DICOM headers.
type PatientDicom struct {
	PatientID        string        `json:"patientID" dicom:"PatientID"`
	PatientName      string        `json:"patientName" dicom:"PatientName"`
	PatientBirthDate string        `json:"patientBirthDate" dicom:"PatientBirthDate"`
	PatientSex       string        `json:"patientSex" dicom:"PatientSex"`
	Studies          []*StudyDicom `json:"studies"`
}

func (p *PatientDicom) GetObjectIdFieldTag() tag.Tag {
	return tag.PatientID
}

// Validate validates PatientList struct and returns validation errors.
// Every patient, study, series and image of the tree is validated; nil entries are rejected.
func (l *PatientList) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Patients, validation.Required),
	)
}

// Validate validates PatientDicom struct and returns validation errors.
func (p *PatientDicom) Validate() error {
	if p == nil {
		return errNilPatient
	}
	return validation.ValidateStruct(p,
		validation.Field(&p.Studies, validation.Required),
	)
}

// Clone returns a deep copy of the list.
func (l *PatientList) Clone() *PatientList {
	if l == nil {
		return nil
	}
	c := *l
	c.Patients = make([]*PatientDicom, len(l.Patients))
	for i, p := range l.Patients {
		c.Patients[i] = p.Clone()
	}
	return &c
}

// Clone returns a deep copy of the patient.
func (p *PatientDicom) Clone() *PatientDicom {
	if p == nil {
		return nil
	}
	c := *p
	c.Studies = make([]*StudyDicom, len(p.Studies))
	for i, s := range p.Studies {
		c.Studies[i] = s.Clone()
	}
	return &c
}

// FirstEquipment returns the equipment of the first series of the first study.
// Archives are imported from a single equipment, so it stands for the whole patient.
func (p *PatientDicom) FirstEquipment() *EquipmentDicom {
	if s := p.FirstSerie(); s != nil {
		return s.Equipment
	}
	return nil
}

// FirstSerie returns the first series of the first study, or nil.
func (p *PatientDicom) FirstSerie() *SerieDicom {
	if p == nil || len(p.Studies) == 0 || len(p.Studies[0].Series) == 0 {
		return nil
	}
	return p.Studies[0].Series[0]
}
