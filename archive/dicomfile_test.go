package archive

import (
	"bytes"
	"encoding/binary"
	"sort"
)

type testElement struct {
	group, element uint16
	vr             string
	value          string
}

// header is the subset of attributes the tests write, keyed by attribute name.
type header map[string]string

var testTags = map[string]testElement{
	"SOPInstanceUID":        {0x0008, 0x0018, "UI", ""},
	"StudyDate":             {0x0008, 0x0020, "DA", ""},
	"Modality":              {0x0008, 0x0060, "CS", ""},
	"Manufacturer":          {0x0008, 0x0070, "LO", ""},
	"StudyDescription":      {0x0008, 0x1030, "LO", ""},
	"SeriesDescription":     {0x0008, 0x103E, "LO", ""},
	"ManufacturerModelName": {0x0008, 0x1090, "LO", ""},
	"PatientName":           {0x0010, 0x0010, "PN", ""},
	"PatientID":             {0x0010, 0x0020, "LO", ""},
	"PatientBirthDate":      {0x0010, 0x0030, "DA", ""},
	"PatientSex":            {0x0010, 0x0040, "CS", ""},
	"DeviceSerialNumber":    {0x0018, 0x1000, "LO", ""},
	"StudyInstanceUID":      {0x0020, 0x000D, "UI", ""},
	"SeriesInstanceUID":     {0x0020, 0x000E, "UI", ""},
	"StudyID":               {0x0020, 0x0010, "SH", ""},
	"SeriesNumber":          {0x0020, 0x0011, "IS", ""},
	"InstanceNumber":        {0x0020, 0x0013, "IS", ""},
}

func writeTestElement(buf *bytes.Buffer, e testElement, value []byte) {
	binary.Write(buf, binary.LittleEndian, e.group)
	binary.Write(buf, binary.LittleEndian, e.element)
	buf.WriteString(e.vr)
	binary.Write(buf, binary.LittleEndian, uint16(len(value)))
	buf.Write(value)
}

func padded(vr, s string) []byte {
	if len(s)%2 == 1 {
		if vr == "UI" {
			s += "\x00"
		} else {
			s += " "
		}
	}
	return []byte(s)
}

// dicomFile encodes h as an explicit VR little endian DICOM file.
func dicomFile(h header) []byte {
	var meta bytes.Buffer
	writeTestElement(&meta, testElement{0x0002, 0x0002, "UI", ""}, padded("UI", "1.2.840.10008.5.1.4.1.1.4"))
	writeTestElement(&meta, testElement{0x0002, 0x0003, "UI", ""}, padded("UI", h["SOPInstanceUID"]))
	writeTestElement(&meta, testElement{0x0002, 0x0010, "UI", ""}, padded("UI", "1.2.840.10008.1.2.1"))

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(meta.Len()))
	writeTestElement(&out, testElement{0x0002, 0x0000, "UL", ""}, groupLength)
	out.Write(meta.Bytes())

	var elements []testElement
	for name, value := range h {
		e, ok := testTags[name]
		if !ok {
			panic("unknown test attribute " + name)
		}
		e.value = value
		elements = append(elements, e)
	}
	sort.Slice(elements, func(i, j int) bool {
		if elements[i].group != elements[j].group {
			return elements[i].group < elements[j].group
		}
		return elements[i].element < elements[j].element
	})
	for _, e := range elements {
		writeTestElement(&out, e, padded(e.vr, e.value))
	}
	return out.Bytes()
}

func instanceHeader(patientID, studyUID, seriesUID, sopUID, number string) header {
	return header{
		"PatientID":             patientID,
		"PatientName":           "HANKS^TOM",
		"PatientBirthDate":      "19560709",
		"PatientSex":            "M",
		"StudyInstanceUID":      studyUID,
		"StudyID":               "42",
		"StudyDate":             "20240102",
		"StudyDescription":      "Brain",
		"SeriesInstanceUID":     seriesUID,
		"SeriesNumber":          "3",
		"SeriesDescription":     "T1 MPRAGE",
		"Modality":              "MR",
		"Manufacturer":          "Siemens",
		"ManufacturerModelName": "Prisma",
		"DeviceSerialNumber":    "SN-1",
		"SOPInstanceUID":        sopUID,
		"InstanceNumber":        number,
	}
}
