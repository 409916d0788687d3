package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phoenix/internal/config"
	"phoenix/internal/inspect"
	"phoenix/internal/logging"
	"phoenix/internal/pipeline"
	"phoenix/internal/probe"
	"phoenix/internal/query"
	"phoenix/internal/webui"
)

// errInvalidConfig is returned after the issues were already printed.
var errInvalidConfig = errors.New("configuration is invalid")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phoenix",
		Short: "Harmonize multi-omics inputs into a pseudonymized Parquet artifact",
		Long: `phoenix parses VCF, expression-matrix and proteomics inputs, replaces
every sample identifier with a one-way sha256 token and writes all rows into
one columnar artifact (local path or s3:// URI).

Examples:
  phoenix validate --config pipeline.yaml
  phoenix run --config pipeline.yaml
  phoenix query --artifact out.parquet --filter tissue=liver --filter ancestry=AFR
  phoenix probe --source https://example.org/cohort.vcf.gz
  phoenix inspect --artifact out.parquet
  phoenix serve --artifact s3://bucket/out.parquet --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newQueryCmd(), newValidateCmd(), newInspectCmd(), newServeCmd(), newProbeCmd())
	return root
}

// loadConfig reads and lints the pipeline file, printing every issue.
func loadConfig(cmd *cobra.Command, path string) (config.Pipeline, error) {
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, errors.Wrapf(errInvalidConfig, "%s", path)
	}
	return p, nil
}

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(cmd, cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "configs/pipelines/sample.yaml", "pipeline config path (yaml, json or toml)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Parse all sources and write the harmonized artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadConfig(cmd, cfgPath)
			if err != nil {
				return err
			}
			log, err := logging.New(p.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			flush, err := pipeline.SetupMetrics(p.Metrics, p.Job, log)
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := pipeline.New(p, log).Run(ctx)
			if err != nil {
				log.Errorw("run failed", logging.FieldError, err.Error())
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "configs/pipelines/sample.yaml", "pipeline config path (yaml, json or toml)")
	return cmd
}

func newQueryCmd() *cobra.Command {
	var (
		artifact string
		filters  []string
		engine   string
		limit    int
		s3       config.S3Config
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print artifact rows whose metadata matches every filter, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := query.ParseFilters(filters)
			if err != nil {
				return err
			}
			eng, err := query.EngineByName(engine)
			if err != nil {
				return err
			}
			log := zap.NewNop().Sugar()
			if verbose {
				if log, err = logging.New(logging.Config{Level: "debug"}); err != nil {
					return err
				}
			}
			rows, err := query.New(eng, s3, log).Run(cmd.Context(), artifact, fs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for i, r := range rows {
				if limit > 0 && i >= limit {
					break
				}
				if err := enc.Encode(r); err != nil {
					return errors.Wrap(err, "write row")
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&artifact, "artifact", "", "artifact location (path or s3:// URI)")
	f.StringArrayVar(&filters, "filter", nil, "metadata filter key=value (repeatable, all must match)")
	f.StringVar(&engine, "engine", query.EngineScan, "query engine: scan, index or sqlite")
	f.IntVar(&limit, "limit", 0, "print at most this many rows (0 = all)")
	addS3Flags(cmd, &s3)
	f.BoolVarP(&verbose, "verbose", "v", false, "log query details to stderr")
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func addS3Flags(cmd *cobra.Command, s3 *config.S3Config) {
	f := cmd.Flags()
	f.StringVar(&s3.Region, "s3-region", "us-east-1", "S3 region for s3:// artifacts")
	f.StringVar(&s3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint, e.g. MinIO")
	f.BoolVar(&s3.PathStyle, "s3-path-style", false, "use path-style S3 addressing")
}

func newInspectCmd() *cobra.Command {
	var (
		artifact string
		top      int
		asJSON   bool
		s3       config.S3Config
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize an artifact: rows per data type and metadata keys with their frequent values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := query.Load(cmd.Context(), artifact, s3)
			if err != nil {
				return err
			}
			rep := inspect.Summarize(rows, top)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return rep.WriteText(cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&artifact, "artifact", "", "artifact location (path or s3:// URI)")
	f.IntVar(&top, "top", inspect.DefaultTopValues, "most frequent values shown per metadata key")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	addS3Flags(cmd, &s3)
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		artifact string
		cfg      webui.Config
		logCfg   logging.Config
		s3       config.S3Config
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an artifact over HTTP for interactive and scripted queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(logCfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rows, err := query.Load(ctx, artifact, s3)
			if err != nil {
				return err
			}
			return webui.NewServer(cfg, rows, log).ListenAndServe(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&artifact, "artifact", "", "artifact location (path or s3:// URI)")
	f.StringVar(&cfg.Addr, "addr", ":8080", "listen address")
	f.IntVar(&cfg.MaxRows, "max-rows", 10000, "cap on rows per response (0 = unlimited)")
	f.StringVar(&logCfg.Level, "log-level", "info", "debug, info, warn or error")
	f.BoolVar(&logCfg.JSON, "log-json", false, "emit JSON logs")
	addS3Flags(cmd, &s3)
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func newProbeCmd() *cobra.Command {
	var opt probe.Options
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sample the head of an input, detect its format and print a starter sources[] entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := probe.Probe(cmd.Context(), opt, nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opt.Path, "source", "", "local path or http(s) URL")
	f.IntVar(&opt.MaxBytes, "bytes", probe.DefaultMaxBytes, "bytes to sample from the start of the input")
	f.StringVar(&opt.Kind, "kind", "", "skip detection and parse as vcf, expression or proteomics")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}
