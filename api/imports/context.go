package imports

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"dicom-import-api/importer"
	"dicom-import-api/models"
)

// ContextResource serves the clinical context step.
type ContextResource struct {
	backend importer.Backend
	cfg     importer.SelectorConfig
}

// NewContextResource creates and returns a ContextResource.
func NewContextResource(cfg Config) *ContextResource {
	return &ContextResource{
		backend: cfg.Backend,
		cfg:     cfg.Selector,
	}
}

type lookupErrorResponse struct {
	Level string `json:"level"`
	Error string `json:"error"`
}

type contextResponse struct {
	Options                 importer.Options     `json:"options"`
	Context                 models.ContextData   `json:"context"`
	Valid                   bool                 `json:"valid"`
	Pending                 bool                 `json:"pending"`
	LookupError             *lookupErrorResponse `json:"lookupError,omitempty"`
	HasCompatibleCenters    bool                 `json:"hasCompatibleCenters"`
	HasCompatibleEquipments bool                 `json:"hasCompatibleEquipments"`
}

func newContextResponse(sel *importer.Selector) *contextResponse {
	opts := sel.Options()
	resp := &contextResponse{
		Options: opts,
		Context: sel.Context(),
		Valid:   sel.Valid(),
		Pending: sel.Pending(),
	}
	if le := sel.Err(); le != nil {
		resp.LookupError = &lookupErrorResponse{Level: le.Level.String(), Error: le.Err.Error()}
	}
	for _, c := range opts.Centers {
		if c != nil && c.Compatible {
			resp.HasCompatibleCenters = true
		}
	}
	for _, e := range opts.Equipments {
		if e != nil && e.Compatible {
			resp.HasCompatibleEquipments = true
		}
	}
	return resp
}

func (rs *contextResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type chooseRequest struct {
	ID *int64 `json:"id"`
}

func (d *chooseRequest) Bind(r *http.Request) error {
	return nil
}

func (rs *ContextResource) get(w http.ResponseWriter, r *http.Request) {
	h, err := sessionFrom(r).Enter(importer.StepContext)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	sel, err := h.Selector(r.Context(), rs.backend, rs.cfg)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	if err := sel.Wait(r.Context()); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	render.Render(w, r, newContextResponse(sel))
}

// choose selects or clears one level once the pending lookups are done, waits for the lookups
// it triggered and saves the context.
func (rs *ContextResource) choose(w http.ResponseWriter, r *http.Request) {
	level, err := importer.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	data := &chooseRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrBind(err))
		return
	}

	h, err := sessionFrom(r).Enter(importer.StepContext)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	sel, err := h.Selector(r.Context(), rs.backend, rs.cfg)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	if err := sel.Wait(r.Context()); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	if data.ID == nil {
		sel.Clear(level)
	} else if err := sel.Select(level, *data.ID); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	if err := sel.Wait(r.Context()); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}

	c := sel.Context()
	if err := h.Commit(importer.Update{Context: &c}); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	render.Render(w, r, newContextResponse(sel))
}

// prefill returns a new entity filled from the source headers and the saved context,
// for the creation forms of the context step.
func (rs *ContextResource) prefill(w http.ResponseWriter, r *http.Request) {
	h, err := sessionFrom(r).Enter(importer.StepContext)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	snap := h.Snapshot()
	patient := firstPatient(snap.Patients)
	if patient == nil {
		render.Render(w, r, ErrUnprocessable(importer.ErrNoPatients))
		return
	}

	switch chi.URLParam(r, "entity") {
	case "center":
		render.JSON(w, r, importer.PrefillCenter(snap.Backup))
	case "equipment":
		render.JSON(w, r, importer.PrefillEquipment(patient, snap.Backup))
	case "subject":
		render.JSON(w, r, importer.PrefillSubject(patient, snap.Backup))
	case "examination":
		render.JSON(w, r, importer.PrefillExamination(patient, snap.Backup))
	default:
		render.Render(w, r, ErrInvalidRequest(errors.New("unknown entity")))
	}
}

// firstPatient returns the first patient with a selected series, or the first patient.
func firstPatient(list *models.PatientList) *models.PatientDicom {
	if list == nil || len(list.Patients) == 0 {
		return nil
	}
	if selected := importer.SelectedOnly(list); len(selected.Patients) > 0 {
		return selected.Patients[0]
	}
	return list.Patients[0]
}
