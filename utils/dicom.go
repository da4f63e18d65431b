package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicom-import-api/models"
)

// ExtractDicomObjectFromDataset fills the string fields of object tagged `dicom:"<Keyword>"`
// from the matching elements of dataset. Missing or unreadable elements are left empty.
func ExtractDicomObjectFromDataset(dataset dicom.Dataset, object models.DicomObject) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected a pointer to struct, got %T", object)
	}
	reflection := rv.Elem().Type()

	for i := 0; i < reflection.NumField(); i++ {
		field := reflection.Field(i)
		keyword := field.Tag.Get("dicom")
		if keyword == "" || field.Type.Kind() != reflect.String {
			continue
		}
		tagInfo, err := tag.FindByName(keyword)
		if err != nil {
			continue
		}
		element, _ := dataset.FindElementByTag(tagInfo.Tag)
		if element == nil {
			continue
		}

		stringValue, err := GetStringValueFromElement(element)
		if err != nil {
			continue
		}
		rv.Elem().FieldByIndex(field.Index).SetString(strings.TrimSpace(stringValue))
	}

	return nil
}

// GetStringValueFromElement renders the value of element as a string; multi-valued elements
// are rendered as a JSON array.
func GetStringValueFromElement(element *dicom.Element) (string, error) {
	value, err := getValueFromElement(element)
	if err != nil {
		return "", err
	}
	rt := reflect.TypeOf(value)
	if rt.Kind() == reflect.Slice || rt.Kind() == reflect.Array {
		byteValue, _ := json.Marshal(value)
		return string(byteValue), nil
	}
	return fmt.Sprintf("%v", value), nil
}

func getValueFromElement(element *dicom.Element) (any, error) {
	tagInfo, err := tag.Find(element.Tag)
	if err != nil {
		return nil, err
	}

	isSingleValue := tagInfo.VM == "1"
	switch element.ValueRepresentation {
	case tag.VRStringList, tag.VRString, tag.VRDate:
		values, ok := element.Value.GetValue().([]string)
		if !ok {
			break
		}
		if isSingleValue || element.ValueRepresentation != tag.VRStringList {
			return first(values)
		}
		return values, nil
	case tag.VRUInt16List, tag.VRUInt32List, tag.VRInt16List, tag.VRInt32List:
		values, ok := element.Value.GetValue().([]int)
		if !ok {
			break
		}
		if isSingleValue {
			return first(values)
		}
		return values, nil
	case tag.VRFloat32List, tag.VRFloat64List:
		values, ok := element.Value.GetValue().([]float64)
		if !ok {
			break
		}
		if isSingleValue {
			return first(values)
		}
		return values, nil
	}

	return nil, fmt.Errorf("unsupported value representation %v for %s", element.ValueRepresentation, tagInfo.Name)
}

func first[T any](values []T) (any, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	return values[0], nil
}
