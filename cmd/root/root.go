// Package root contains the root command for the application
package root

import (
	"fmt"

	"fjacquet/statement-ingest/internal/config"
	"fjacquet/statement-ingest/internal/container"
	"fjacquet/statement-ingest/internal/logging"

	"github.com/spf13/cobra"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	ConfigFile string
	Input      string
	Output     string
	Format     string
	OCR        bool
}

var (
	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "statement-ingest",
		Short: "A CLI tool to extract transactions from bank statements.",
		Long: `statement-ingest reads bank statements (PDF, Excel, CSV or scanned images),
detects the issuing bank and extracts normalized transactions with balance checks.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initContainer()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appContainer == nil {
				return
			}
			if err := appContainer.Close(); err != nil {
				appContainer.GetLogger().WithError(err).Warn("Failed to release resources")
			}
		},
	}

	// SharedFlags holds the persistent flags of every command
	SharedFlags = CommonFlags{}

	appContainer *container.Container
	initialized  bool
)

// Init initializes the root command and all flags
func Init() {
	if initialized {
		return
	}
	initialized = true
	Cmd.PersistentFlags().StringVarP(&SharedFlags.ConfigFile, "config", "c", "", "Config file (default: ./config.yaml or ~/.statement-ingest/config.yaml)")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Input, "input", "i", "", "Input statement")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Output file (default: stdout)")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Format, "format", "f", "", "Document format: pdf, excel, csv or image (default: from the file extension)")
	Cmd.PersistentFlags().BoolVar(&SharedFlags.OCR, "ocr", false, "Run OCR on PDFs and images")
}

func initContainer() error {
	if appContainer != nil {
		return nil
	}
	config.LoadEnv()

	var (
		cfg *config.Config
		err error
	)
	if SharedFlags.ConfigFile != "" {
		cfg, err = config.InitializeConfigFromFile(SharedFlags.ConfigFile)
	} else {
		cfg, err = config.InitializeConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// --ocr turns OCR on for this run even when the config leaves it off.
	if SharedFlags.OCR {
		cfg.OCR.Enabled = true
	}

	c, err := container.NewContainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	appContainer = c
	return nil
}

// GetContainer returns the application container, nil before PersistentPreRun.
func GetContainer() *container.Container {
	return appContainer
}

// SetContainer replaces the application container, for tests.
func SetContainer(c *container.Container) {
	appContainer = c
}

// GetLogger returns the container logger, or a default one before initialization.
func GetLogger() logging.Logger {
	if appContainer == nil {
		return logging.OrDefault(nil)
	}
	return appContainer.GetLogger()
}
