package cmd

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dicom-import-api/api"
	"dicom-import-api/fs"
)

// envKeyReplacer maps nested keys to environment names, backend.studies_url to BACKEND_STUDIES_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start http server with configured api",
	Long:  `Starts a http server and serves the configured api`,
	Run: func(cmd *cobra.Command, args []string) {
		server, err := api.NewServer()
		if err != nil {
			log.Fatal(err)
		}
		server.Start()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)

	// viper.SetDefault("port", "localhost:3000")
	viper.SetDefault("port", "3000")
	viper.SetDefault("log_level", "debug")
	viper.SetDefault("log_textlogging", false)
	viper.SetDefault("enable_cors", false)
	viper.SetDefault("request_timeout", api.DefaultRequestTimeout)

	viper.SetDefault("backend.studies_url", "http://localhost:9902/studies")
	viper.SetDefault("backend.datasets_url", "http://localhost:9904/datasets")
	viper.SetDefault("backend.import_url", "http://localhost:9903/import")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", 10*time.Second)
	viper.SetDefault("backend.retries", 2)
	viper.SetDefault("backend.retry_interval", 200*time.Millisecond)

	viper.SetDefault("import.uploads_dir", fs.UPLOADS_DIR)
	viper.SetDefault("import.max_upload_size", 512<<20)
	viper.SetDefault("import.max_archive_size", 2<<30)
	viper.SetDefault("import.in_memory_limit", 64<<20)
	viper.SetDefault("import.session_ttl", 2*time.Hour)
}
