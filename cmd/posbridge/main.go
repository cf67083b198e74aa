package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/connector"
	pkgerrors "github.com/ajitpratap0/posbridge/pkg/errors"
	jsonpkg "github.com/ajitpratap0/posbridge/pkg/json"
	"github.com/ajitpratap0/posbridge/pkg/logger"
	"github.com/ajitpratap0/posbridge/pkg/pos"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile, requestFile string

	root := &cobra.Command{
		Use:   "posbridge",
		Short: "posbridge - POS API to data warehouse ingestion connector",
		Long: `posbridge extracts entities from a POS retail API, enriches them with
derived fields, and emits warehouse-ready records plus recomputed aggregates.

Each subcommand is one protocol operation. The request payload is read from
--request (a JSON file, or "-" for stdin) and the response is written as JSON
to stdout; logs go to stderr.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "connector configuration file (YAML)")
	root.PersistentFlags().StringVarP(&requestFile, "request", "r", "", `request payload file, "-" for stdin`)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("posbridge v%s\n", pos.Version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file with the connector defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "posbridge.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			cfg := config.NewConfig("posbridge")
			// Placeholders are substituted from the environment at load time.
			cfg.API.ClientID = "${POSBRIDGE_CLIENT_ID}"
			cfg.API.ClientSecret = "${POSBRIDGE_CLIENT_SECRET}"
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	root.AddCommand(configCmd)

	root.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Verify API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req connector.TestRequest
			handler, err := setup(configFile, requestFile, &req, func() *connector.Credentials { return req.Credentials })
			if err != nil {
				return err
			}
			resp := handler.Test(cmd.Context(), &req)
			if err := writeResponse(resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("connection test failed: %s", resp.Message)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Report the schema of every entity the connector emits",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req connector.SchemaRequest
			handler, err := setup(configFile, requestFile, &req, func() *connector.Credentials { return req.Credentials })
			if err != nil {
				return err
			}
			resp, err := handler.Schema(cmd.Context(), &req)
			if err != nil {
				_ = writeResponse(errorResponse(err))
				return err
			}
			return writeResponse(resp)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Extract, enhance, and aggregate records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req connector.SyncRequest
			handler, err := setup(configFile, requestFile, &req, func() *connector.Credentials { return req.Credentials })
			if err != nil {
				return err
			}
			resp, err := handler.Sync(cmd.Context(), &req)
			if err != nil {
				_ = writeResponse(errorResponse(err))
				return err
			}
			return writeResponse(resp)
		},
	})

	ctx := context.WithValue(context.Background(), logger.InvocationIDKey,
		fmt.Sprintf("inv-%d", time.Now().UnixNano()))
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// setup loads configuration and the request payload, initializes logging,
// and builds the protocol handler. Request credentials are folded into the
// configuration before validation so requests can carry secrets instead of
// the config file.
func setup(configFile, requestFile string, request interface{}, creds func() *connector.Credentials) (*connector.Handler, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	if requestFile != "" {
		if err := loadRequest(requestFile, request); err != nil {
			return nil, err
		}
	}
	if c := creds(); c != nil && c.ClientID != "" {
		cfg.API.ClientID = c.ClientID
		cfg.API.ClientSecret = c.ClientSecret
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    "json",
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return connector.NewHandler(cfg), nil
}

// loadConfig builds the connector configuration from defaults, the optional
// YAML file, and environment variable fallbacks for the secrets.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.NewConfig("posbridge")
	if path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.API.ClientID == "" {
		cfg.API.ClientID = os.Getenv("POSBRIDGE_CLIENT_ID")
	}
	if cfg.API.ClientSecret == "" {
		cfg.API.ClientSecret = os.Getenv("POSBRIDGE_CLIENT_SECRET")
	}
	if cfg.API.AuthURL == "" {
		cfg.API.AuthURL = os.Getenv("POSBRIDGE_AUTH_URL")
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = os.Getenv("POSBRIDGE_BASE_URL")
	}

	return cfg, nil
}

// loadRequest decodes the JSON request payload from a file or stdin
func loadRequest(path string, out interface{}) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open request file: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := jsonpkg.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("failed to decode request payload: %w", err)
	}
	return nil
}

// writeResponse emits the operation response as a single JSON document on
// stdout
func writeResponse(resp interface{}) error {
	enc := jsonpkg.NewEncoder(os.Stdout)
	return enc.Encode(resp)
}

// errorResponse shapes an invocation-level failure so callers always get a
// JSON document on stdout, even when the operation aborts before producing a
// real response.
func errorResponse(err error) map[string]interface{} {
	return map[string]interface{}{
		"success":    false,
		"error":      err.Error(),
		"error_type": string(pkgerrors.TypeOf(err)),
	}
}
