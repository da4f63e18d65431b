package imports

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicom-import-api/fs"
	"dicom-import-api/importer"
	"dicom-import-api/models"
)

type fakeBackend struct {
	failCenters bool
}

func (b *fakeBackend) ListStudiesWithCenters(ctx context.Context) ([]*models.Study, error) {
	return []*models.Study{
		{ID: 100, Name: "Alpha", StudyCenterList: []*models.StudyCenter{{Center: &models.Center{ID: 1}}}},
	}, nil
}

func (b *fakeBackend) ListCenters(ctx context.Context) ([]*models.Center, error) {
	if b.failCenters {
		return nil, errors.New("centers are down")
	}
	return []*models.Center{
		{ID: 1, Name: "Rennes", AcquisitionEquipments: []*models.AcquisitionEquipment{{
			ID:           10,
			SerialNumber: "SN-1",
			ManufacturerModel: &models.ManufacturerModel{
				Name:         "Prisma",
				Manufacturer: &models.Manufacturer{Name: "Siemens"},
			},
		}}},
	}, nil
}

func (b *fakeBackend) FindSubjectsByStudy(ctx context.Context, studyID int64) ([]*models.SubjectWithSubjectStudy, error) {
	return []*models.SubjectWithSubjectStudy{{ID: 1000, Name: "alpha-01"}}, nil
}

func (b *fakeBackend) FindExaminationsBySubjectAndStudy(ctx context.Context, subjectID, studyID int64) ([]*models.SubjectExamination, error) {
	return []*models.SubjectExamination{{ID: subjectID*10 + 1, ExaminationDate: "2024-01-02"}}, nil
}

func (b *fakeBackend) ListConverters(ctx context.Context) ([]*models.NiftiConverter, error) {
	return []*models.NiftiConverter{{ID: 1, Name: "dcm2niix", IsActive: true}}, nil
}

type fakeImages map[string][]byte

func (f fakeImages) FetchImage(ctx context.Context, workFolder, path string) ([]byte, error) {
	data, ok := f[path]
	if !ok {
		return nil, importer.ErrImageNotFound
	}
	return data, nil
}

type testAPI struct {
	api    *API
	store  *importer.Store
	server *httptest.Server
}

func newTestAPI(t *testing.T, backend importer.Backend) *testAPI {
	t.Helper()
	store, err := importer.NewStore()
	require.NoError(t, err)

	api, err := NewAPI(store, Config{
		Backend:     backend,
		Images:      fakeImages{"s1/1.dcm": []byte("one"), "s1/2.dcm": []byte("two")},
		WorkFolders: fs.NewWorkFolders(t.TempDir()),
		Selector: importer.SelectorConfig{
			Timeout:       time.Second,
			Retries:       1,
			RetryInterval: time.Millisecond,
		},
		MaxArchiveSize: 4 << 10,
		InMemoryLimit:  1 << 20,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &testAPI{api: api, store: store, server: srv}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func pacsPatients() *models.PatientList {
	return &models.PatientList{
		Patients: []*models.PatientDicom{{
			PatientID:   "P1",
			PatientName: "HANKS^TOM",
			PatientSex:  "M",
			Studies: []*models.StudyDicom{{
				StudyInstanceUID: "1.1",
				StudyDescription: "Brain",
				Series: []*models.SerieDicom{
					{
						SeriesInstanceUID: "1.1.1",
						SeriesDescription: "T1",
						Images:            []*models.ImageDicom{{Path: "s1/1.dcm"}, {Path: "s1/2.dcm"}},
					},
					{
						SeriesInstanceUID: "1.1.2",
						SeriesDescription: "FLAIR",
						Images:            []*models.ImageDicom{{Path: "s2/1.dcm"}},
					},
				},
			}},
		}},
	}
}

func (ta *testAPI) createPacsSession(t *testing.T) string {
	t.Helper()
	resp, body := ta.do(t, http.MethodPost, "/pacs", pacsPatients())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(importer.ModePacs), body["mode"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateFromPacs(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])

	resp, body = ta.do(t, http.MethodPost, "/pacs", &models.PatientList{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "errors")
}

func TestCreateFromPacsSharedWorkFolder(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	list := pacsPatients()
	list.WorkFolder = "pacs-1"
	resp, _ := ta.do(t, http.MethodPost, "/pacs", list)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPost, "/pacs", list)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateFromPacsRejectsNullEntries(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	for name, payload := range map[string]string{
		"patient": `{"patients":[null]}`,
		"study":   `{"patients":[{"patientID":"P","studies":[null]}]}`,
		"series":  `{"patients":[{"patientID":"P","studies":[{"studyInstanceUID":"1.1","series":[null]}]}]}`,
		"image": `{"patients":[{"patientID":"P","studies":[{"studyInstanceUID":"1.1",` +
			`"series":[{"seriesInstanceUID":"1.1.1","images":[null]}]}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, body := ta.do(t, http.MethodPost, "/pacs", json.RawMessage(payload))
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			assert.Contains(t, body, "errors")
		})
	}

	all, err := ta.store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUnknownSession(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	resp, _ := ta.do(t, http.MethodGet, "/unknown/series", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, _ := ta.do(t, http.MethodDelete, "/"+id+"/", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSeriesSelection(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/series", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["series"], 2)
	assert.Len(t, body["nodes"], 4)
	assert.Equal(t, false, body["valid"])

	resp, body = ta.do(t, http.MethodPut, "/"+id+"/series", map[string]any{"selected": map[string]bool{"1.1.2": true}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, _ = ta.do(t, http.MethodPut, "/"+id+"/series", map[string]any{"selected": map[string]bool{"9.9.9": true}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPut, "/"+id+"/series", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "errors")
}

func TestToggleLoadsPreview(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	// nodes: patient 0, study 1, series 2 and 3
	resp, body := ta.do(t, http.MethodPost, "/"+id+"/tree/2/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{0.0, 1.0, 2.0}, body["openPath"])
	preview, ok := body["preview"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.1.1", preview["seriesInstanceUID"])
	assert.Len(t, preview["binaryImages"], 2)

	// the FLAIR images are missing: the tree moves but the preview fails
	resp, body = ta.do(t, http.MethodPost, "/"+id+"/tree/3/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{0.0, 1.0, 3.0}, body["openPath"])
	assert.NotEmpty(t, body["previewError"])
	assert.NotContains(t, body, "preview")

	resp, body = ta.do(t, http.MethodGet, "/"+id+"/series", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	kept, ok := body["preview"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.1.1", kept["seriesInstanceUID"])

	resp, _ = ta.do(t, http.MethodPost, "/"+id+"/tree/42/toggle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = ta.do(t, http.MethodPost, "/"+id+"/tree/abc/toggle", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreview(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/series/1.1.1/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["binaryImages"], 2)

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/series/9.9.9/preview", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestThumbnailRejectsNonDicomImage(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, _ := ta.do(t, http.MethodGet, "/"+id+"/series/1.1.1/thumbnail?index=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/series/1.1.1/thumbnail?center=40", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/series/1.1.1/thumbnail?index=5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContextWorkflow(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["pending"])
	assert.Equal(t, true, body["hasCompatibleCenters"])
	assert.Equal(t, true, body["hasCompatibleEquipments"])
	ctx := body["context"].(map[string]any)
	assert.Equal(t, 100.0, ctx["study"].(map[string]any)["id"])
	assert.Equal(t, 1.0, ctx["center"].(map[string]any)["id"])
	assert.Equal(t, 10.0, ctx["acquisitionEquipment"].(map[string]any)["id"])
	assert.Len(t, body["options"].(map[string]any)["subjects"], 1)

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/result", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPut, "/"+id+"/context/subject", map[string]int64{"id": 999})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = ta.do(t, http.MethodPut, "/"+id+"/context/planet", map[string]int64{"id": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, choice := range []struct {
		level string
		id    int64
	}{
		{"subject", 1000},
		{"examination", 10001},
		{"converter", 1},
	} {
		resp, body = ta.do(t, http.MethodPut, "/"+id+"/context/"+choice.level, map[string]int64{"id": choice.id})
		require.Equal(t, http.StatusOK, resp.StatusCode, choice.level)
	}
	assert.Equal(t, true, body["valid"])

	// complete context but nothing selected yet
	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/result", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = ta.do(t, http.MethodPut, "/"+id+"/series", map[string]any{"selected": map[string]bool{"1.1.1": true}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ta.do(t, http.MethodGet, "/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["context"].(map[string]any)
	assert.Equal(t, 1.0, result["niftiConverter"].(map[string]any)["id"])
	patients := body["patients"].(map[string]any)["patients"].([]any)
	require.Len(t, patients, 1)
	series := patients[0].(map[string]any)["studies"].([]any)[0].(map[string]any)["series"].([]any)
	require.Len(t, series, 1)
	assert.Equal(t, "1.1.1", series[0].(map[string]any)["seriesInstanceUID"])

	// the new selection rebuilt the selector from the saved choices
	resp, body = ta.do(t, http.MethodGet, "/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
}

func TestClearContextLevel(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, _ := ta.do(t, http.MethodPut, "/"+id+"/context/subject", map[string]int64{"id": 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ta.do(t, http.MethodPut, "/"+id+"/context/equipment", map[string]any{"id": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ctx := body["context"].(map[string]any)
	assert.Nil(t, ctx["acquisitionEquipment"])
	assert.Nil(t, ctx["subject"])
	assert.NotNil(t, ctx["center"])
}

func TestContextLookupFailure(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{failCenters: true})
	id := ta.createPacsSession(t)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/context", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "study", body["lookupLevel"])
}

func TestContextIsExclusive(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	s, err := ta.store.Get(id)
	require.NoError(t, err)
	h, err := s.Enter(importer.StepSeries)
	require.NoError(t, err)
	defer h.Release()

	resp, _ := ta.do(t, http.MethodGet, "/"+id+"/context", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPrefill(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	resp, _ := ta.do(t, http.MethodPut, "/"+id+"/context/subject", map[string]int64{"id": 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ta.do(t, http.MethodGet, "/"+id+"/prefill/subject", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TOM", body["firstName"])
	assert.Equal(t, "HANKS", body["lastName"])

	resp, body = ta.do(t, http.MethodGet, "/"+id+"/prefill/examination", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Brain", body["comment"])

	resp, _ = ta.do(t, http.MethodGet, "/"+id+"/prefill/planet", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func upload(t *testing.T, ta *testAPI, files map[string]string) *http.Response {
	t.Helper()
	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "import.zip")
	require.NoError(t, err)
	_, err = part.Write(zipped.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ta.server.URL+"/archive", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := ta.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestCreateFromArchiveWithoutDicom(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	resp := upload(t, ta, map[string]string{"readme.txt": "not an image"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	all, err := ta.store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateFromArchiveTooLarge(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	resp := upload(t, ta, map[string]string{"big.dcm": strings.Repeat("0", 64<<10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	all, err := ta.store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateFromArchiveBadRequest(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})

	resp, err := ta.server.Client().Post(ta.server.URL+"/archive", "text/plain", strings.NewReader("zip?"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJanitorPrunesExpiredSessions(t *testing.T) {
	ta := newTestAPI(t, &fakeBackend{})
	id := ta.createPacsSession(t)

	ta.api.prune(time.Now().Add(time.Minute))

	_, err := ta.store.Get(id)
	assert.ErrorIs(t, err, importer.ErrSessionNotFound)
}
