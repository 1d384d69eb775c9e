package config_test

import (
	"context"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/jonnathanguaman/covidpipeline/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Countries, convey.ShouldResemble, []string{"Ecuador", "Spain"})
				convey.So(cfg.Window, convey.ShouldEqual, 7)
				convey.So(cfg.PopulationFallback, convey.ShouldEqual, 1_000_000)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "reports")
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("COVIDPIPE_WINDOW", "14")
			_ = os.Setenv("COVIDPIPE_OUTPUT_DIR", "/tmp/out")
			_ = os.Setenv("COVIDPIPE_MAX_RETRIES", "5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Window, convey.ShouldEqual, 14)
				convey.So(cfg.OutputDir, convey.ShouldEqual, "/tmp/out")
				convey.So(cfg.MaxRetries, convey.ShouldEqual, 5)
				convey.So(cfg.PopulationFallback, convey.ShouldEqual, 1_000_000) // From defaults
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
window: 10
date_from: "2021-06-01"
date_to: "2022-06-01"
output_dir: "artifacts"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("COVIDPIPE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Window, convey.ShouldEqual, 10)
				convey.So(cfg.DateFrom, convey.ShouldEqual, "2021-06-01")
				convey.So(cfg.OutputDir, convey.ShouldEqual, "artifacts")
				convey.So(cfg.Countries, convey.ShouldResemble, []string{"Ecuador", "Spain"}) // From defaults
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
window: 10
output_dir: "artifacts"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("COVIDPIPE_CONFIG", tmpFile)
			_ = os.Setenv("COVIDPIPE_WINDOW", "21") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Window, convey.ShouldEqual, 21)             // Overridden by env
				convey.So(cfg.OutputDir, convey.ShouldEqual, "artifacts") // From file
			})
		})

		convey.Convey("When loading config with a non-existent file", func() {
			_ = os.Setenv("COVIDPIPE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrLoadConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an invalid window", func() {
			_ = os.Setenv("COVIDPIPE_WINDOW", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a malformed date", func() {
			_ = os.Setenv("COVIDPIPE_DATE_FROM", "not-a-date")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an inverted date range", func() {
			_ = os.Setenv("COVIDPIPE_DATE_FROM", "2023-01-01")
			_ = os.Setenv("COVIDPIPE_DATE_TO", "2020-01-01")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an out-of-range threshold", func() {
			_ = os.Setenv("COVIDPIPE_COMPLETENESS_THRESHOLD", "1.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"COVIDPIPE_CONFIG",
		"COVIDPIPE_WINDOW",
		"COVIDPIPE_OUTPUT_DIR",
		"COVIDPIPE_MAX_RETRIES",
		"COVIDPIPE_DATE_FROM",
		"COVIDPIPE_DATE_TO",
		"COVIDPIPE_COMPLETENESS_THRESHOLD",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "covidpipe-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
