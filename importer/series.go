package importer

import (
	"fmt"

	"dicom-import-api/models"
)

// SerieItem is a series listed with its ancestry for selection.
type SerieItem struct {
	PatientID        string             `json:"patientID"`
	PatientName      string             `json:"patientName"`
	StudyInstanceUID string             `json:"studyInstanceUID"`
	StudyDescription string             `json:"studyDescription"`
	Serie            *models.SerieDicom `json:"serie"`
}

// Flatten lists every series of list in tree order.
func Flatten(list *models.PatientList) []SerieItem {
	var items []SerieItem
	if list == nil {
		return items
	}
	for _, p := range list.Patients {
		for _, st := range p.Studies {
			for _, se := range st.Series {
				items = append(items, SerieItem{
					PatientID:        p.PatientID,
					PatientName:      p.PatientName,
					StudyInstanceUID: st.StudyInstanceUID,
					StudyDescription: st.StudyDescription,
					Serie:            se,
				})
			}
		}
	}
	return items
}

// FindSerie returns the series with the given instance UID, or nil.
func FindSerie(list *models.PatientList, seriesUID string) *models.SerieDicom {
	for _, item := range Flatten(list) {
		if item.Serie.SeriesInstanceUID == seriesUID {
			return item.Serie
		}
	}
	return nil
}

// SetSelected applies the selection flags keyed by series instance UID.
// Nothing is changed if one of the UIDs is unknown.
func SetSelected(list *models.PatientList, selected map[string]bool) error {
	for uid := range selected {
		if FindSerie(list, uid) == nil {
			return fmt.Errorf("%w: %s", ErrSerieNotFound, uid)
		}
	}
	for _, item := range Flatten(list) {
		if v, ok := selected[item.Serie.SeriesInstanceUID]; ok {
			item.Serie.Selected = v
		}
	}
	return nil
}

// HasSelection reports whether at least one series is selected.
func HasSelection(list *models.PatientList) bool {
	for _, item := range Flatten(list) {
		if item.Serie.Selected {
			return true
		}
	}
	return false
}

// SelectedOnly returns a copy of list keeping only selected series and their ancestors.
func SelectedOnly(list *models.PatientList) *models.PatientList {
	out := list.Clone()
	if out == nil {
		return nil
	}
	var patients []*models.PatientDicom
	for _, p := range out.Patients {
		var studies []*models.StudyDicom
		for _, st := range p.Studies {
			var series []*models.SerieDicom
			for _, se := range st.Series {
				if se.Selected {
					series = append(series, se)
				}
			}
			if len(series) > 0 {
				st.Series = series
				studies = append(studies, st)
			}
		}
		if len(studies) > 0 {
			p.Studies = studies
			patients = append(patients, p)
		}
	}
	out.Patients = patients
	return out
}
