package imports

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"dicom-import-api/archive"
	"dicom-import-api/fs"
	"dicom-import-api/importer"
	"dicom-import-api/models"
)

const (
	defaultMaxUploadSize  = 512 << 20 // 512MB
	defaultMaxArchiveSize = 2 << 30   // 2GB
)

// SessionResource creates, describes and discards import sessions.
type SessionResource struct {
	store          SessionStore
	workFolders    *fs.WorkFolders
	maxUploadSize  int64
	maxArchiveSize int64
	inMemoryLimit  int64
}

// NewSessionResource creates and returns a SessionResource.
func NewSessionResource(store SessionStore, cfg Config) *SessionResource {
	return &SessionResource{
		store:          store,
		workFolders:    cfg.WorkFolders,
		maxUploadSize:  cfg.MaxUploadSize,
		maxArchiveSize: cfg.MaxArchiveSize,
		inMemoryLimit:  cfg.InMemoryLimit,
	}
}

type sessionResponse struct {
	*importer.Session
	Owner   string   `json:"owner,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

func newSessionResponse(s *importer.Session, skipped []string) *sessionResponse {
	resp := &sessionResponse{Session: s, Skipped: skipped}
	if owner := s.Owner(); owner != 0 {
		resp.Owner = owner.String()
	}
	return resp
}

func (rs *sessionResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type pacsRequest struct {
	*models.PatientList
}

func (d *pacsRequest) Bind(r *http.Request) error {
	if d.PatientList == nil {
		return errors.New("missing patient list")
	}
	d.FromPacs = true
	d.FromDicomZip = false
	return d.PatientList.Validate()
}

func (rs *SessionResource) createFromArchive(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > rs.maxUploadSize {
		render.Render(w, r, ErrTooLarge(errors.New("the uploaded archive is too big")))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rs.maxUploadSize)

	file, _, err := r.FormFile("file")
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil || len(body) == 0 {
		render.Render(w, r, ErrInvalidRequest(errors.New("wrong request body")))
		return
	}

	a, err := archive.Decode(body, rs.maxArchiveSize)
	if errors.Is(err, archive.ErrTooLarge) {
		render.Render(w, r, ErrTooLarge(err))
		return
	}
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	workFolder := uuid.NewString()
	list, skipped := a.PatientList(workFolder)
	if len(skipped) > 0 {
		log(r).WithField("skipped", len(skipped)).Warn("archive entries are not DICOM files")
	}
	if len(list.Patients) == 0 {
		render.Render(w, r, ErrUnprocessable(importer.ErrNoPatients))
		return
	}

	if err := rs.workFolders.Extract(workFolder, a); err != nil {
		log(r).WithError(err).Error("extracting archive")
		render.Render(w, r, ErrInternalServerError)
		return
	}

	var files importer.Files
	if a.Size() <= rs.inMemoryLimit {
		files = a
	}
	s, err := importer.NewSession(list, files)
	if err == nil {
		err = rs.store.Create(s)
	}
	if err != nil {
		rs.workFolders.Remove(workFolder)
		render.Render(w, r, errRender(r, err))
		return
	}

	log(r).WithField("session", s.ID).Info("archive imported")
	render.Status(r, http.StatusCreated)
	render.Render(w, r, newSessionResponse(s, skipped))
}

func (rs *SessionResource) createFromPacs(w http.ResponseWriter, r *http.Request) {
	data := &pacsRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrBind(err))
		return
	}

	s, err := importer.NewSession(data.PatientList, nil)
	if err == nil {
		err = rs.store.Create(s)
	}
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}

	log(r).WithField("session", s.ID).Info("pacs query imported")
	render.Status(r, http.StatusCreated)
	render.Render(w, r, newSessionResponse(s, nil))
}

func (rs *SessionResource) get(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, newSessionResponse(sessionFrom(r), nil))
}

func (rs *SessionResource) delete(w http.ResponseWriter, r *http.Request) {
	s, err := rs.store.Delete(sessionFrom(r).ID)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	discard(rs.workFolders, s, log(r))
	render.NoContent(w, r)
}

type resultResponse struct {
	Context  models.ContextData  `json:"context"`
	Patients *models.PatientList `json:"patients"`
}

func (rs *resultResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// result returns the input of the finish step: the committed context and the selected series.
func (rs *SessionResource) result(w http.ResponseWriter, r *http.Request) {
	h, err := sessionFrom(r).Enter(importer.StepFinish)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	snap := h.Snapshot()
	if snap.Committed == nil || !snap.Committed.Valid() {
		render.Render(w, r, ErrConflict(errors.New("clinical context is incomplete")))
		return
	}
	if !importer.HasSelection(snap.Patients) {
		render.Render(w, r, ErrConflict(errors.New("no series selected")))
		return
	}
	render.Render(w, r, &resultResponse{
		Context:  *snap.Committed,
		Patients: importer.SelectedOnly(snap.Patients),
	})
}
