package importer

import (
	"strings"

	"dicom-import-api/models"
)

// PrefillCenter returns a new center linked to the selected study.
func PrefillCenter(c models.ContextData) *models.Center {
	center := &models.Center{}
	if c.Study != nil {
		center.StudyCenterList = []*models.StudyCenter{{Study: &models.IdName{ID: c.Study.ID, Name: c.Study.Name}}}
	}
	return center
}

// PrefillEquipment returns a new equipment of the selected center carrying the source serial number.
func PrefillEquipment(patient *models.PatientDicom, c models.ContextData) *models.AcquisitionEquipment {
	eq := &models.AcquisitionEquipment{}
	if c.Center != nil {
		eq.Center = &models.IdName{ID: c.Center.ID, Name: c.Center.Name}
	}
	if src := patient.FirstEquipment(); src != nil {
		eq.SerialNumber = src.DeviceSerialNumber
		eq.ManufacturerModel = &models.ManufacturerModel{
			Name:         src.ManufacturerModelName,
			Manufacturer: &models.Manufacturer{Name: src.Manufacturer},
		}
	}
	return eq
}

// PrefillSubject returns a living human subject built from the patient headers.
func PrefillSubject(patient *models.PatientDicom, c models.ContextData) *models.Subject {
	subject := &models.Subject{
		ImagedObjectCategory: models.LivingHumanBeing,
		BirthDate:            patient.PatientBirthDate,
		Sex:                  patient.PatientSex,
	}
	subject.FirstName, subject.LastName = SplitPatientName(patient.PatientName)
	ss := &models.SubjectStudy{PhysicallyInvolved: false}
	if c.Study != nil {
		ss.Study = &models.IdName{ID: c.Study.ID, Name: c.Study.Name}
	}
	subject.SubjectStudyList = []*models.SubjectStudy{ss}
	return subject
}

// PrefillExamination returns an examination for the selected study, center and subject,
// dated from the first series and commented with the study description.
func PrefillExamination(patient *models.PatientDicom, c models.ContextData) *models.Examination {
	exam := &models.Examination{}
	if c.Study != nil {
		exam.Study = &models.IdName{ID: c.Study.ID, Name: c.Study.Name}
	}
	if c.Center != nil {
		exam.Center = &models.IdName{ID: c.Center.ID, Name: c.Center.Name}
	}
	if c.Subject != nil {
		exam.Subject = &models.IdName{ID: c.Subject.ID, Name: c.Subject.Name}
	}
	if s := patient.FirstSerie(); s != nil {
		exam.ExaminationDate = s.SeriesDate
	}
	if len(patient.Studies) > 0 {
		exam.Comment = patient.Studies[0].StudyDescription
	}
	return exam
}

// SplitPatientName splits a DICOM person name into first and last name.
// "HANKS^TOM" gives "TOM", "HANKS"; a name without exactly two components is used for both.
func SplitPatientName(name string) (first, last string) {
	if name == "" {
		return "", ""
	}
	parts := strings.Split(name, "^")
	if len(parts) != 2 {
		return name, name
	}
	return parts[1], parts[0]
}
