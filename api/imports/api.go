// Package imports provides the resources of the import wizard.
package imports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"dicom-import-api/fs"
	"dicom-import-api/importer"
	"dicom-import-api/logging"
)

type ctxKey int

const (
	ctxSession ctxKey = iota
)

// SessionStore keeps the running sessions.
type SessionStore interface {
	Create(s *importer.Session) error
	Get(id string) (*importer.Session, error)
	Delete(id string) (*importer.Session, error)
	Prune(deadline time.Time) ([]*importer.Session, error)
}

// Config holds the collaborators of the import resources.
type Config struct {
	Backend       importer.Backend
	Images        importer.ImageFetcher
	WorkFolders   *fs.WorkFolders
	Selector      importer.SelectorConfig
	MaxUploadSize int64
	// MaxArchiveSize caps the decompressed size of an uploaded archive.
	MaxArchiveSize int64
	InMemoryLimit  int64
}

// API provides application resources and handlers.
type API struct {
	Sessions *SessionResource
	Series   *SeriesResource
	Context  *ContextResource

	store       SessionStore
	workFolders *fs.WorkFolders
	logger      logrus.FieldLogger
}

// NewAPI configures and returns the import API.
func NewAPI(store SessionStore, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("imports: nil session store")
	}
	if cfg.Backend == nil {
		return nil, errors.New("imports: nil backend")
	}
	if cfg.WorkFolders == nil {
		cfg.WorkFolders = fs.NewWorkFolders("")
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.MaxArchiveSize <= 0 {
		cfg.MaxArchiveSize = defaultMaxArchiveSize
	}

	api := &API{
		Sessions:    NewSessionResource(store, cfg),
		Series:      NewSeriesResource(cfg),
		Context:     NewContextResource(cfg),
		store:       store,
		workFolders: cfg.WorkFolders,
		logger:      cfg.Selector.Logger,
	}
	if api.logger == nil {
		api.logger = logrus.StandardLogger()
	}
	return api, nil
}

// Router provides application routes.
func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/archive", a.Sessions.createFromArchive)
	r.Post("/pacs", a.Sessions.createFromPacs)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(a.sessionCtx)
		r.Get("/", a.Sessions.get)
		r.Delete("/", a.Sessions.delete)
		r.Get("/result", a.Sessions.result)

		r.Get("/series", a.Series.list)
		r.Put("/series", a.Series.update)
		r.Get("/series/{seriesUID}/preview", a.Series.preview)
		r.Get("/series/{seriesUID}/thumbnail", a.Series.thumbnail)
		r.Post("/tree/{node}/toggle", a.Series.toggle)

		r.Get("/context", a.Context.get)
		r.Put("/context/{level}", a.Context.choose)
		r.Get("/prefill/{entity}", a.Context.prefill)
	})

	return r
}

func (a *API) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.store.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			render.Render(w, r, errRender(r, err))
			return
		}
		logging.LogEntrySetField(r, "session", s.ID)
		ctx := context.WithValue(r.Context(), ctxSession, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Janitor deletes the sessions older than ttl every interval until ctx is done.
// A zero ttl keeps sessions forever.
func (a *API) Janitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.prune(now.Add(-ttl))
		}
	}
}

func (a *API) prune(deadline time.Time) {
	pruned, err := a.store.Prune(deadline)
	if err != nil {
		a.logger.WithError(err).Error("pruning sessions")
	}
	for _, s := range pruned {
		a.logger.WithField("session", s.ID).Info("session expired")
		discard(a.workFolders, s, a.logger.WithField("session", s.ID))
	}
}

// discard removes the files of a deleted session.
func discard(workFolders *fs.WorkFolders, s *importer.Session, log logrus.FieldLogger) {
	if s.Mode != importer.ModeDicom {
		return
	}
	if err := workFolders.Remove(s.WorkFolder); err != nil {
		log.WithError(err).Warn("removing work folder")
	}
}

func sessionFrom(r *http.Request) *importer.Session {
	s, _ := r.Context().Value(ctxSession).(*importer.Session)
	return s
}

func log(r *http.Request) logrus.FieldLogger {
	return logging.GetLogEntry(r)
}
