package imports

import (
	"errors"
	"image/png"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	validation "github.com/go-ozzo/ozzo-validation"

	"dicom-import-api/fs"
	"dicom-import-api/importer"
	"dicom-import-api/utils"
)

// SeriesResource serves the series step: selection, tree browsing and previews.
type SeriesResource struct {
	workFolders *fs.WorkFolders
	images      importer.ImageFetcher
}

// NewSeriesResource creates and returns a SeriesResource.
func NewSeriesResource(cfg Config) *SeriesResource {
	return &SeriesResource{
		workFolders: cfg.WorkFolders,
		images:      cfg.Images,
	}
}

// fetcher returns where the images of a session live: its work folder for archives,
// the image service for PACS queries.
func (rs *SeriesResource) fetcher(s *importer.Session) importer.ImageFetcher {
	if s.Mode == importer.ModePacs && rs.images != nil {
		return rs.images
	}
	return rs.workFolders
}

type seriesResponse struct {
	Series   []importer.SerieItem `json:"series"`
	Nodes    []importer.Node      `json:"nodes"`
	Roots    []int                `json:"roots"`
	OpenPath []int                `json:"openPath"`
	Valid    bool                 `json:"valid"`
	Preview  *importer.Preview    `json:"preview,omitempty"`
}

func newSeriesResponse(h *importer.Handoff) (*seriesResponse, error) {
	tree, err := h.Tree()
	if err != nil {
		return nil, err
	}
	snap := h.Snapshot()
	return &seriesResponse{
		Series:   importer.Flatten(snap.Patients),
		Nodes:    tree.Nodes(),
		Roots:    tree.Roots(),
		OpenPath: tree.OpenPath(),
		Valid:    importer.HasSelection(snap.Patients),
		Preview:  snap.Preview,
	}, nil
}

func (rs *seriesResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type seriesRequest struct {
	Selected map[string]bool `json:"selected"`
}

func (d *seriesRequest) Bind(r *http.Request) error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Selected, validation.Required),
	)
}

func (rs *SeriesResource) list(w http.ResponseWriter, r *http.Request) {
	h, err := sessionFrom(r).Enter(importer.StepSeries)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	resp, err := newSeriesResponse(h)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	render.Render(w, r, resp)
}

func (rs *SeriesResource) update(w http.ResponseWriter, r *http.Request) {
	data := &seriesRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrBind(err))
		return
	}

	h, err := sessionFrom(r).Enter(importer.StepSeries)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	patients := h.Snapshot().Patients
	if err := importer.SetSelected(patients, data.Selected); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	if err := h.Commit(importer.Update{Patients: patients}); err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}

	resp, err := newSeriesResponse(h)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	render.Render(w, r, resp)
}

type toggleResponse struct {
	Node         importer.Node     `json:"node"`
	OpenPath     []int             `json:"openPath"`
	Preview      *importer.Preview `json:"preview,omitempty"`
	PreviewError string            `json:"previewError,omitempty"`
}

func (rs *toggleResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// toggle opens or closes a tree node. Opening a series node loads its preview; a failed
// preview leaves the previous one in place.
func (rs *SeriesResource) toggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "node"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	s := sessionFrom(r)
	h, err := s.Enter(importer.StepSeries)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	tree, err := h.Tree()
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	opened, err := tree.Toggle(index)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	node, _ := tree.Node(index)
	resp := &toggleResponse{Node: node, OpenPath: tree.OpenPath()}

	if opened && node.Kind == importer.NodeSerie {
		p, err := h.Preview(r.Context(), node.UID, rs.fetcher(s))
		if err != nil {
			log(r).WithError(err).WithField("series", node.UID).Warn("preview failed")
			resp.PreviewError = err.Error()
		}
		resp.Preview = p
	}
	render.Render(w, r, resp)
}

func (rs *SeriesResource) preview(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	h, err := s.Enter(importer.StepSeries)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	p, err := h.Preview(r.Context(), chi.URLParam(r, "seriesUID"), rs.fetcher(s))
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	render.JSON(w, r, p)
}

// thumbnail renders one image of a series as PNG, the middle one unless index is given.
// center and width override the window stored in the image.
func (rs *SeriesResource) thumbnail(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	h, err := s.Enter(importer.StepSeries)
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	defer h.Release()

	seriesUID := chi.URLParam(r, "seriesUID")
	serie := importer.FindSerie(h.Snapshot().Patients, seriesUID)
	if serie == nil {
		render.Render(w, r, ErrNotFound)
		return
	}

	query := r.URL.Query()
	index := len(serie.Images) / 2
	if v := query.Get("index"); v != "" {
		if index, err = strconv.Atoi(v); err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
	}
	window, err := windowFromQuery(query.Get("center"), query.Get("width"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	data, err := h.Image(r.Context(), seriesUID, index, rs.fetcher(s))
	if err != nil {
		render.Render(w, r, errRender(r, err))
		return
	}
	img, err := utils.RenderDicomImage(data, window)
	if err != nil {
		render.Render(w, r, ErrUnprocessable(err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		log(r).WithError(err).Error("encoding thumbnail")
	}
}

func windowFromQuery(center, width string) (*utils.RenderImageWindowParameters, error) {
	if center == "" && width == "" {
		return nil, nil
	}
	if center == "" || width == "" {
		return nil, errors.New("center and width go together")
	}
	c, err := strconv.ParseFloat(center, 64)
	if err != nil {
		return nil, err
	}
	wd, err := strconv.ParseFloat(width, 64)
	if err != nil {
		return nil, err
	}
	return &utils.RenderImageWindowParameters{WindowCenter: c, WindowWidth: wd, Function: utils.Linear}, nil
}
