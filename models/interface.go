package models

import (
	"reflect"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// DicomObject is a node of the imported DICOM hierarchy identified by a DICOM attribute.
type DicomObject interface {
	GetObjectIdFieldTag() tag.Tag
}

// ObjectID returns the value of the field holding the object's identifying attribute.
func ObjectID(object DicomObject) string {
	tagInfo, err := tag.Find(object.GetObjectIdFieldTag())
	if err != nil {
		return ""
	}
	value := reflect.Indirect(reflect.ValueOf(object))
	field := value.FieldByName(tagInfo.Name)
	if !field.IsValid() || field.Kind() != reflect.String {
		return ""
	}
	return field.String()
}

// IdName is the short reference the backend services use between entities.
type IdName struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}
