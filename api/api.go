// Package api configures an http server for the import wizard resources.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/spf13/viper"

	"dicom-import-api/api/imports"
	"dicom-import-api/client"
	"dicom-import-api/fs"
	"dicom-import-api/importer"
	"dicom-import-api/logging"
)

// New configures application resources and routes.
func New(enableCORS bool) (*chi.Mux, *imports.API, error) {
	logger := logging.NewLogger()

	backend := client.New(client.Config{
		StudiesURL:  viper.GetString("backend.studies_url"),
		DatasetsURL: viper.GetString("backend.datasets_url"),
		ImportURL:   viper.GetString("backend.import_url"),
		Token:       viper.GetString("backend.token"),
		HTTPClient:  &http.Client{Timeout: viper.GetDuration("backend.timeout")},
		Logger:      logger,
	})

	store, err := importer.NewStore()
	if err != nil {
		logger.WithField("module", "store").Error(err)
		return nil, nil, err
	}

	importsAPI, err := imports.NewAPI(store, imports.Config{
		Backend:     backend,
		Images:      backend,
		WorkFolders: fs.NewWorkFolders(viper.GetString("import.uploads_dir")),
		Selector: importer.SelectorConfig{
			Timeout:       viper.GetDuration("backend.timeout"),
			Retries:       uint64(viper.GetInt("backend.retries")),
			RetryInterval: viper.GetDuration("backend.retry_interval"),
			Logger:        logger,
		},
		MaxUploadSize:  viper.GetInt64("import.max_upload_size"),
		MaxArchiveSize: viper.GetInt64("import.max_archive_size"),
		InMemoryLimit:  viper.GetInt64("import.in_memory_limit"),
	})
	if err != nil {
		logger.WithField("module", "imports").Error(err)
		return nil, nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	timeout := viper.GetDuration("request_timeout")
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	r.Use(middleware.Timeout(timeout))

	r.Use(logging.NewStructuredLogger(logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// use CORS middleware if client is not served by this api, e.g. from other domain or CDN
	if enableCORS {
		r.Use(corsConfig().Handler)
	}

	r.Mount("/imports", importsAPI.Router())

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	return r, importsAPI, nil
}

func corsConfig() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400, // Maximum value not ignored by any of major browsers
	})
}

// DefaultRequestTimeout applies when request_timeout is not configured.
const DefaultRequestTimeout = 15 * time.Second
