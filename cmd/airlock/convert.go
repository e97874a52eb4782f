// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/airlock/lib/config"
	"github.com/bureau-foundation/airlock/lib/convert"
	"github.com/bureau-foundation/airlock/lib/document"
	"github.com/bureau-foundation/airlock/lib/isolation"
	"github.com/bureau-foundation/airlock/lib/pdf"
)

// conversionFlags are the flags convert and batch share.
type conversionFlags struct {
	configPath   string
	ocrLang      string
	provider     string
	profile      string
	image        string
	timeoutMin   int
	redactErrors bool
	debug        bool
}

func (f *conversionFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "path to the YAML configuration file (default: $AIRLOCK_CONFIG)")
	flags.StringVar(&f.ocrLang, "ocr-lang", "", "add a searchable text layer in this tesseract language (eng, deu, ...)")
	flags.StringVar(&f.provider, "provider", "runtime", "isolation provider: runtime, vm, or null")
	flags.StringVar(&f.profile, "profile", "", "sandbox profile name (default from configuration)")
	flags.StringVar(&f.image, "image", "", "rasterizer container image (default from configuration)")
	flags.IntVar(&f.timeoutMin, "timeout-min", 0, "minimum conversion budget in seconds (default from configuration)")
	flags.BoolVar(&f.redactErrors, "redact-errors", false, "replace failure detail with a fixed generic message")
	flags.BoolVar(&f.debug, "debug", false, "enable sandbox debug logging and stderr capture")
}

func convertCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	var cf conversionFlags
	cf.register(flags)
	output := flags.String("output", "", "output PDF path (default: <input>-safe.pdf)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: airlock convert [flags] <document>

Converts one untrusted document into a safe PDF. The document is
rasterized inside a network-isolated sandbox; only pixels cross back
to this process, which reassembles them into a fresh PDF.

Flags:
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("convert takes exactly one document path")
	}

	doc, err := document.New(flags.Arg(0))
	if err != nil {
		return err
	}
	if *output != "" {
		if err := doc.SetOutputPath(*output); err != nil {
			return err
		}
	}

	driver, err := newDriver(&cf, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := make(chan convert.ProgressEvent, 16)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events)
	}()

	result := driver.Convert(ctx, doc, events)
	close(events)
	<-rendered

	printResult(result)
	if result.State != convert.StateCompleted {
		return exitError{code: 1}
	}
	return nil
}

func batchCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("batch", pflag.ContinueOnError)
	var cf conversionFlags
	cf.register(flags)
	outputDir := flags.String("output-dir", "", "write safe PDFs into this directory instead of alongside inputs")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: airlock batch [flags] <document>...

Converts each document in turn, one sandbox at a time. A failed
document does not stop the rest. The exit code is 1 if any document
failed.

Flags:
`)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return fmt.Errorf("batch takes one or more document paths")
	}

	docs := make([]*document.Document, 0, flags.NArg())
	for _, path := range flags.Args() {
		doc, err := document.New(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if *outputDir != "" {
			if err := doc.SetOutputDir(*outputDir); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		docs = append(docs, doc)
	}

	driver, err := newDriver(&cf, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := make(chan convert.ProgressEvent, 16)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events)
	}()

	results := driver.ConvertAll(ctx, docs, events)
	close(events)
	<-rendered

	printBatchTable(results)

	for _, result := range results {
		if result.State != convert.StateCompleted {
			return exitError{code: 1}
		}
	}
	return nil
}

// newDriver assembles the conversion driver from configuration plus
// command-line overrides.
func newDriver(cf *conversionFlags, logger *slog.Logger) (*convert.Driver, error) {
	cfg, err := loadConfig(cf.configPath)
	if err != nil {
		return nil, err
	}

	if cf.image != "" {
		cfg.Runtime.Image = cf.image
	}
	if cf.profile != "" {
		cfg.Sandbox.Profile = cf.profile
	}
	if cf.ocrLang != "" {
		cfg.PDF.OCRLanguage = cf.ocrLang
	}
	if cf.timeoutMin > 0 {
		cfg.Timeouts.MinSeconds = cf.timeoutMin
	}
	debug := cf.debug || cfg.Runtime.Debug

	provider, err := buildProvider(cfg, cf.provider, logger)
	if err != nil {
		return nil, err
	}

	opts := convert.Options{
		Provider: provider,
		Timeout:  timeoutPolicy(cfg.Timeouts),
		Limits: pdf.Limits{
			MaxPages:  cfg.PDF.MaxPages,
			MaxWidth:  cfg.PDF.MaxWidth,
			MaxHeight: cfg.PDF.MaxHeight,
		},
		DPI:          cfg.PDF.DPI,
		RedactErrors: cf.redactErrors,
		Debug:        debug,
		Logger:       logger,
	}
	if cfg.PDF.OCRLanguage != "" {
		opts.OCR = &pdf.OCROptions{
			Language:    cfg.PDF.OCRLanguage,
			TessdataDir: cfg.PDF.TessdataDir,
		}
	}
	return convert.New(opts)
}

// loadConfig resolves configuration in precedence order: explicit
// --config path, then AIRLOCK_CONFIG, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case path != "":
		cfg, err = config.LoadFile(path)
	case os.Getenv("AIRLOCK_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildProvider(cfg *config.Config, name string, logger *slog.Logger) (isolation.Provider, error) {
	switch name {
	case "runtime", "":
		engine := cfg.Runtime.Engine
		if engine == "auto" {
			engine = ""
		}
		return isolation.NewRuntimeProvider(isolation.RuntimeConfig{
			Runtime:     engine,
			Image:       cfg.Runtime.Image,
			SeccompPath: cfg.Runtime.SeccompPolicy,
			Profile:     cfg.Sandbox.Profile,
			Logger:      logger,
		}), nil
	case "vm":
		return isolation.NewVMProvider(isolation.VMConfig{
			Command: []string{
				"qrexec-client-vm", "--",
				"@dispvm:airlock-dvm", "airlock.Convert",
			},
			Logger: logger,
		}), nil
	case "null":
		return &isolation.NullProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want runtime, vm, or null)", name)
	}
}

func timeoutPolicy(ts config.TimeoutSettings) convert.TimeoutPolicy {
	minBudget := time.Duration(ts.MinSeconds) * time.Second
	perMiB := time.Duration(ts.PerMiBSeconds) * time.Second
	perPage := time.Duration(ts.PerPageSeconds) * time.Second
	return func(sizeBytes int64, pages int) time.Duration {
		budget := time.Duration(float64(sizeBytes) / (1 << 20) * float64(perMiB))
		if budget < minBudget {
			budget = minBudget
		}
		if paged := time.Duration(pages) * perPage; paged > budget {
			budget = paged
		}
		return budget
	}
}

// renderProgress drains conversion events. On a terminal it redraws a
// single status line in place; otherwise it stays quiet so piped
// output holds only results.
func renderProgress(events <-chan convert.ProgressEvent) {
	interactive := progressTerminal()
	drew := false
	for event := range events {
		if event.Err {
			if drew {
				fmt.Fprint(os.Stderr, "\n")
				drew = false
			}
			fmt.Fprintf(os.Stderr, "%s %s\n", styleFailed.Render("!"), event.Text)
			continue
		}
		if !interactive {
			continue
		}
		fmt.Fprintf(os.Stderr, "\r\033[K%s %3.0f%%  %s",
			styleWorking.Render("converting"), event.Percentage, event.Text)
		drew = true
	}
	if drew {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
}

func printResult(result convert.Result) {
	switch result.State {
	case convert.StateCompleted:
		fmt.Printf("%s %s -> %s\n", styleSafe.Render("safe"),
			result.Doc.Name(), result.OutputPath)
		fmt.Printf("  %s\n", styleDim.Render(fmt.Sprintf("%d pages, %s, %s",
			result.Pages, result.Digest, result.Duration.Round(time.Millisecond))))
	case convert.StateCancelled:
		fmt.Printf("%s %s\n", styleFailed.Render("cancelled"), result.Doc.Name())
	default:
		fmt.Printf("%s %s: %s\n", styleFailed.Render("failed"),
			result.Doc.Name(), failureText(result))
	}
}

func failureText(result convert.Result) string {
	if result.Failure == nil {
		return "unknown failure"
	}
	return fmt.Sprintf("%s (%s)", result.Failure.Msg, result.Failure.Kind)
}
