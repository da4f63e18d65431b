package models

import (
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/go-ozzo/ozzo-validation"
)

// ImageDicom is one instance of a series, addressed by its path inside the work folder.
type ImageDicom struct {
	Path           string `json:"path"`
	SOPInstanceUID string `json:"sopInstanceUID" dicom:"SOPInstanceUID"`
	InstanceNumber string `json:"instanceNumber" dicom:"InstanceNumber"`
}

func (i *ImageDicom) GetObjectIdFieldTag() tag.Tag {
	return tag.SOPInstanceUID
}

// Validate validates ImageDicom struct and returns validation errors.
func (i *ImageDicom) Validate() error {
	if i == nil {
		return errNilImage
	}
	return validation.ValidateStruct(i,
		validation.Field(&i.Path, validation.Required),
	)
}
