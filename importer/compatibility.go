package importer

import (
	"dicom-import-api/models"
)

// Mode is the origin of the imported series.
type Mode string

const (
	ModeDicom Mode = "DICOM"
	ModePacs  Mode = "PACS"
)

// ModeOf returns the mode of a patient list.
func ModeOf(list *models.PatientList) Mode {
	if list != nil && list.FromPacs && !list.FromDicomZip {
		return ModePacs
	}
	return ModeDicom
}

// Fingerprint identifies an acquisition equipment.
type Fingerprint struct {
	SerialNumber     string
	ModelName        string
	ManufacturerName string
}

// FingerprintOf builds the fingerprint of a DICOM equipment.
func FingerprintOf(e *models.EquipmentDicom) Fingerprint {
	if e == nil {
		return Fingerprint{}
	}
	return Fingerprint{
		SerialNumber:     e.DeviceSerialNumber,
		ModelName:        e.ManufacturerModelName,
		ManufacturerName: e.Manufacturer,
	}
}

// Matches reports whether the equipment has exactly this fingerprint.
func (f Fingerprint) Matches(e *models.AcquisitionEquipment) bool {
	return e.SerialNumber == f.SerialNumber &&
		e.ModelName() == f.ModelName &&
		e.ManufacturerName() == f.ManufacturerName
}

// ResolveCompatibility annotates studies, centers and equipment compatible with the import source.
//
// Every study center is replaced by the full record found in centers. A center id missing from centers
// is reported and its association skipped. Studies without a center list are left out of the result;
// studies with an empty one are kept and stay incompatible. Flags are only ever set, never cleared.
func ResolveCompatibility(mode Mode, fp Fingerprint, studies []*models.Study, centers []*models.Center) ([]*models.Study, []error) {
	byID := make(map[int64]*models.Center, len(centers))
	for _, c := range centers {
		if c != nil {
			byID[c.ID] = c
		}
	}

	var result []*models.Study
	var missing []error
	for _, study := range studies {
		if study == nil || study.StudyCenterList == nil {
			continue
		}
		for _, sc := range study.StudyCenterList {
			if sc == nil || sc.Center == nil {
				continue
			}
			center, ok := byID[sc.Center.ID]
			if !ok {
				missing = append(missing, &MissingReferenceError{StudyID: study.ID, CenterID: sc.Center.ID})
				continue
			}
			if mode == ModePacs {
				// PACS imports are not bound to an equipment.
				for _, eq := range center.AcquisitionEquipments {
					if eq != nil {
						eq.Compatible = true
					}
				}
				center.Compatible = true
				study.Compatible = true
			} else {
				for _, eq := range center.AcquisitionEquipments {
					if eq != nil && fp.Matches(eq) {
						eq.Compatible = true
						center.Compatible = true
						study.Compatible = true
					}
				}
			}
			sc.Center = center
		}
		result = append(result, study)
	}
	return result, missing
}
