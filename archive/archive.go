// Package archive decodes uploaded DICOM archives.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"

	"dicom-import-api/models"
	"dicom-import-api/utils"
)

// ErrTooLarge is returned when the decoded entries exceed the size limit.
var ErrTooLarge = errors.New("archive: decoded content exceeds the size limit")

// Archive holds the decoded entries of a zip archive by relative path.
type Archive struct {
	files map[string][]byte
	size  int64
}

// Decode reads every regular entry of a zip archive into memory.
// limit caps the total decoded size; zero or less means no limit.
func Decode(data []byte, limit int64) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	a := &Archive{files: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := CleanPath(f.Name)
		if !ok || strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		var r io.Reader
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		r = rc
		if limit > 0 {
			remaining := limit - a.size
			if f.UncompressedSize64 > uint64(remaining) {
				rc.Close()
				return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
			}
			// the header size is not trusted
			r = io.LimitReader(rc, remaining+1)
		}
		content, err := io.ReadAll(r)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if limit > 0 && a.size+int64(len(content)) > limit {
			return nil, fmt.Errorf("%w: %s", ErrTooLarge, f.Name)
		}
		a.files[name] = content
		a.size += int64(len(content))
	}
	return a, nil
}

// CleanPath normalizes an entry name to a relative slash path. It rejects names escaping the root.
func CleanPath(name string) (string, bool) {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." {
		return "", false
	}
	return name, true
}

// File returns the content of the entry at p.
func (a *Archive) File(p string) ([]byte, bool) {
	name, ok := CleanPath(p)
	if !ok {
		return nil, false
	}
	data, ok := a.files[name]
	return data, ok
}

// Paths returns the entry paths in lexical order.
func (a *Archive) Paths() []string {
	paths := make([]string, 0, len(a.files))
	for p := range a.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Size returns the total size of the decoded entries.
func (a *Archive) Size() int64 {
	return a.size
}

// Instance holds the headers of one DICOM file.
type Instance struct {
	Patient   models.PatientDicom
	Study     models.StudyDicom
	Serie     models.SerieDicom
	Equipment models.EquipmentDicom
	Image     models.ImageDicom
}

// ReadInstance parses the headers of a DICOM file.
func ReadInstance(p string, data []byte) (*Instance, error) {
	dataset, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, err
	}
	inst := &Instance{Image: models.ImageDicom{Path: p}}
	for _, object := range []models.DicomObject{&inst.Patient, &inst.Study, &inst.Serie, &inst.Equipment, &inst.Image} {
		if err := utils.ExtractDicomObjectFromDataset(dataset, object); err != nil {
			return nil, err
		}
	}
	if inst.Study.StudyInstanceUID == "" || inst.Serie.SeriesInstanceUID == "" {
		return nil, fmt.Errorf("%s: missing study or series instance UID", p)
	}
	return inst, nil
}

// PatientList parses every DICOM entry and groups the instances into a patient tree.
// Entries that are not DICOM files are skipped and returned.
func (a *Archive) PatientList(workFolder string) (*models.PatientList, []string) {
	var instances []*Instance
	var skipped []string
	for _, p := range a.Paths() {
		inst, err := ReadInstance(p, a.files[p])
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		instances = append(instances, inst)
	}
	list := Group(instances)
	list.WorkFolder = workFolder
	list.FromDicomZip = true
	return list, skipped
}

// Group builds the patient/study/series hierarchy of instances, keeping first-seen order
// and sorting images by instance number.
func Group(instances []*Instance) *models.PatientList {
	list := &models.PatientList{}
	patients := map[string]*models.PatientDicom{}
	studies := map[string]*models.StudyDicom{}
	series := map[string]*models.SerieDicom{}

	for _, inst := range instances {
		pid := models.ObjectID(&inst.Patient)
		patient, ok := patients[pid]
		if !ok {
			p := inst.Patient
			patient = &p
			patient.Studies = nil
			patients[pid] = patient
			list.Patients = append(list.Patients, patient)
		}

		sid := pid + "/" + models.ObjectID(&inst.Study)
		study, ok := studies[sid]
		if !ok {
			s := inst.Study
			study = &s
			study.Series = nil
			studies[sid] = study
			patient.Studies = append(patient.Studies, study)
		}

		seid := sid + "/" + models.ObjectID(&inst.Serie)
		serie, ok := series[seid]
		if !ok {
			s := inst.Serie
			serie = &s
			eq := inst.Equipment
			serie.Equipment = &eq
			serie.Images = nil
			series[seid] = serie
			study.Series = append(study.Series, serie)
		}
		img := inst.Image
		serie.Images = append(serie.Images, &img)
	}

	for _, serie := range series {
		sort.SliceStable(serie.Images, func(i, j int) bool {
			ni, ei := strconv.Atoi(serie.Images[i].InstanceNumber)
			nj, ej := strconv.Atoi(serie.Images[j].InstanceNumber)
			if ei == nil && ej == nil && ni != nj {
				return ni < nj
			}
			return serie.Images[i].Path < serie.Images[j].Path
		})
		serie.NumberOfInstances = len(serie.Images)
	}
	return list
}
