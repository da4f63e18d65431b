package importer

import (
	"context"
	"errors"
	"sync"
	"time"

	"dicom-import-api/models"
)

var errBoom = errors.New("boom")

var prismaFingerprint = Fingerprint{SerialNumber: "SN-1", ModelName: "Prisma", ManufacturerName: "Siemens"}

func equipment(id int64, serial, model, manufacturer string) *models.AcquisitionEquipment {
	return &models.AcquisitionEquipment{
		ID:           id,
		SerialNumber: serial,
		ManufacturerModel: &models.ManufacturerModel{
			Name:         model,
			Manufacturer: &models.Manufacturer{Name: manufacturer},
		},
	}
}

// testCenters: Rennes owns the Prisma SN-1 and an Achieva, Paris a Skyra, Lyon nothing.
func testCenters() []*models.Center {
	return []*models.Center{
		{ID: 1, Name: "Rennes", AcquisitionEquipments: []*models.AcquisitionEquipment{
			equipment(10, "SN-1", "Prisma", "Siemens"),
			equipment(11, "SN-2", "Achieva", "Philips"),
		}},
		{ID: 2, Name: "Paris", AcquisitionEquipments: []*models.AcquisitionEquipment{
			equipment(20, "SN-3", "Skyra", "Siemens"),
		}},
		{ID: 3, Name: "Lyon"},
	}
}

func studyCenter(centerID int64) *models.StudyCenter {
	return &models.StudyCenter{Center: &models.Center{ID: centerID}}
}

// testStudies: Alpha runs in Rennes and Paris, Beta in Paris, Gamma has no center and
// Delta has no center list at all.
func testStudies() []*models.Study {
	return []*models.Study{
		{ID: 100, Name: "Alpha", StudyCenterList: []*models.StudyCenter{studyCenter(1), studyCenter(2)}},
		{ID: 200, Name: "Beta", StudyCenterList: []*models.StudyCenter{studyCenter(2), studyCenter(3)}},
		{ID: 300, Name: "Gamma", StudyCenterList: []*models.StudyCenter{}},
		{ID: 400, Name: "Delta"},
	}
}

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	studies    func() ([]*models.Study, error)
	centers    func() ([]*models.Center, error)
	subjects   func(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error)
	exams      func(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error)
	converters func(ctx context.Context) ([]*models.NiftiConverter, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: map[string]int{},
		studies: func() ([]*models.Study, error) {
			return testStudies(), nil
		},
		centers: func() ([]*models.Center, error) {
			return testCenters(), nil
		},
		subjects: func(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error) {
			switch studyID {
			case 100:
				return []*models.SubjectWithSubjectStudy{{ID: 1000, Name: "alpha-01"}, {ID: 1001, Name: "alpha-02"}}, nil
			case 200:
				return []*models.SubjectWithSubjectStudy{{ID: 2000, Name: "beta-01"}}, nil
			}
			return nil, nil
		},
		exams: func(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error) {
			return []*models.SubjectExamination{
				{ID: subjectID*10 + 1, ExaminationDate: "2024-01-02"},
				{ID: subjectID*10 + 2, ExaminationDate: "2024-03-04"},
			}, nil
		},
		converters: func(ctx context.Context) ([]*models.NiftiConverter, error) {
			return []*models.NiftiConverter{{ID: 1, Name: "dcm2niix", IsActive: true}, {ID: 2, Name: "mcverter"}}, nil
		},
	}
}

func (b *fakeBackend) count(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[name]++
}

func (b *fakeBackend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *fakeBackend) ListStudiesWithCenters(ctx context.Context) ([]*models.Study, error) {
	b.count("studies")
	return b.studies()
}

func (b *fakeBackend) ListCenters(ctx context.Context) ([]*models.Center, error) {
	b.count("centers")
	return b.centers()
}

func (b *fakeBackend) FindSubjectsByStudy(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error) {
	b.count("subjects")
	return b.subjects(ctx, studyID)
}

func (b *fakeBackend) FindExaminationsBySubjectAndStudy(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error) {
	b.count("examinations")
	return b.exams(ctx, subjectID, studyID)
}

func (b *fakeBackend) ListConverters(ctx context.Context) ([]*models.NiftiConverter, error) {
	b.count("converters")
	return b.converters(ctx)
}

func testSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Timeout:       time.Second,
		Retries:       2,
		RetryInterval: time.Millisecond,
	}
}

func serie(uid, description string, images ...string) *models.SerieDicom {
	s := &models.SerieDicom{
		SeriesInstanceUID: uid,
		SeriesDescription: description,
		SeriesDate:        "20240102",
		Modality:          "MR",
		Equipment: &models.EquipmentDicom{
			Manufacturer:          "Siemens",
			ManufacturerModelName: "Prisma",
			DeviceSerialNumber:    "SN-1",
		},
	}
	for i, p := range images {
		s.Images = append(s.Images, &models.ImageDicom{Path: p, SOPInstanceUID: uid + "." + string(rune('1'+i))})
	}
	s.NumberOfInstances = len(s.Images)
	return s
}

// testPatients: one patient with a two series brain study and a one series spine study,
// then a second patient with a single series.
func testPatients() *models.PatientList {
	return &models.PatientList{
		WorkFolder:   "wf-1",
		FromDicomZip: true,
		Patients: []*models.PatientDicom{
			{
				PatientID:        "P1",
				PatientName:      "HANKS^TOM",
				PatientBirthDate: "19560709",
				PatientSex:       "M",
				Studies: []*models.StudyDicom{
					{StudyInstanceUID: "1.1", StudyDescription: "Brain", Series: []*models.SerieDicom{
						serie("1.1.1", "T1", "p1/s1/1.dcm", "p1/s1/2.dcm", "p1/s1/3.dcm"),
						serie("1.1.2", "FLAIR", "p1/s2/1.dcm"),
					}},
					{StudyInstanceUID: "1.2", StudyDescription: "Spine", Series: []*models.SerieDicom{
						serie("1.2.1", "T2", "p1/s3/1.dcm"),
					}},
				},
			},
			{
				PatientID:   "P2",
				PatientName: "DOE",
				Studies: []*models.StudyDicom{
					{StudyInstanceUID: "2.1", StudyDescription: "Knee", Series: []*models.SerieDicom{
						serie("2.1.1", "PD", "p2/s1/1.dcm"),
					}},
				},
			},
		},
	}
}

type mapFiles map[string][]byte

func (m mapFiles) File(path string) ([]byte, bool) {
	data, ok := m[path]
	return data, ok
}

type fakeFetcher struct {
	mu     sync.Mutex
	images map[string][]byte
	fail   map[string]error
	calls  int
}

func (f *fakeFetcher) FetchImage(ctx context.Context, workFolder, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	data, ok := f.images[path]
	if !ok {
		return nil, errBoom
	}
	return data, nil
}
