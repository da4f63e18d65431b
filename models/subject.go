package models

import (
	"github.com/go-ozzo/ozzo-validation"
)

// ImagedObjectCategory is the nature of a subject.
type ImagedObjectCategory string

const (
	PhantomCategory  ImagedObjectCategory = "PHANTOM"
	LivingHumanBeing ImagedObjectCategory = "LIVING_HUMAN_BEING"
	HumanCadaver     ImagedObjectCategory = "HUMAN_CADAVER"
	AnatomicalPiece  ImagedObjectCategory = "ANATOMICAL_PIECE"
	LivingAnimal     ImagedObjectCategory = "LIVING_ANIMAL"
	AnimalCadaver    ImagedObjectCategory = "ANIMAL_CADAVER"
)

// SubjectStudy links a subject to a study.
type SubjectStudy struct {
	ID                     int64   `json:"id,omitempty"`
	Study                  *IdName `json:"study"`
	PhysicallyInvolved     bool    `json:"physicallyInvolved"`
	SubjectStudyIdentifier string  `json:"subjectStudyIdentifier,omitempty"`
}

// SubjectWithSubjectStudy is a subject as listed for a given study.
type SubjectWithSubjectStudy struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Identifier   string        `json:"identifier"`
	SubjectStudy *SubjectStudy `json:"subjectStudy"`
}

// Subject is a subject to be created from the imported patient.
type Subject struct {
	ID                   int64                `json:"id,omitempty"`
	Name                 string               `json:"name"`
	Identifier           string               `json:"identifier,omitempty"`
	FirstName            string               `json:"firstName,omitempty"`
	LastName             string               `json:"lastName,omitempty"`
	BirthDate            string               `json:"birthDate,omitempty"`
	Sex                  string               `json:"sex,omitempty"`
	ImagedObjectCategory ImagedObjectCategory `json:"imagedObjectCategory"`
	SubjectStudyList     []*SubjectStudy      `json:"subjectStudyList"`
}

// Validate validates SubjectWithSubjectStudy struct and returns validation errors.
func (s *SubjectWithSubjectStudy) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ID, validation.Required),
	)
}

// Validate validates Subject struct and returns validation errors.
func (s *Subject) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ImagedObjectCategory, validation.Required, validation.In(
			PhantomCategory, LivingHumanBeing, HumanCadaver, AnatomicalPiece, LivingAnimal, AnimalCadaver)),
		validation.Field(&s.SubjectStudyList, validation.Required),
	)
}
