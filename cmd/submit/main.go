package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/adtrack-console/internal/bootstrap"
	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/adtrack-console/internal/observability/logging"
)

type cliOptions struct {
	transcripts  []string
	audioPath    string
	segmentation string
	model        string
	xlsxPath     string
	asJSON       bool
	modelsWait   time.Duration
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "adtrack-submit: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "adtrack-submit: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.audioPath, "audio", "", "Audio recording attached to every request (.wav .mp3 .m4a .flac .ogg)")
	flag.StringVar(&opts.segmentation, "segmentation", "", "Segmentation table attached to every request (.csv)")
	flag.StringVar(&opts.model, "model", "", "Model name (default: first model advertised by the backend)")
	flag.StringVar(&opts.xlsxPath, "xlsx", "", "Write the batch report workbook to this path")
	flag.BoolVar(&opts.asJSON, "json", false, "Print the settled batch as JSON")
	flag.DurationVar(&opts.modelsWait, "models-wait", 10*time.Second, "How long to wait for the model list")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] [TRANSCRIPT.cha ...]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.transcripts = flag.Args()
	opts.audioPath = strings.TrimSpace(opts.audioPath)
	opts.segmentation = strings.TrimSpace(opts.segmentation)
	opts.model = strings.TrimSpace(opts.model)

	if len(opts.transcripts) == 0 && opts.audioPath == "" {
		flag.Usage()
		return opts, errors.New("pass at least one transcript file or --audio")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewTextLogger("adtrack-submit", cfg.LogLevel))
	// Events are an API concern.
	cfg.NATSURL = ""

	input, err := stageFiles(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if input.Model == "" {
		loadCtx, cancel := context.WithTimeout(ctx, opts.modelsWait)
		app.LoadModels(loadCtx)
		cancel()
	}

	snapshot, err := app.Batch.Submit(ctx, input)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}

	if opts.xlsxPath != "" {
		if err := writeWorkbook(opts.xlsxPath, *snapshot); err != nil {
			return err
		}
	}
	if opts.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}
	printTable(*snapshot)
	return nil
}

func stageFiles(opts cliOptions) (domain.StagedInput, error) {
	input := domain.StagedInput{Model: opts.model}
	for _, path := range opts.transcripts {
		file, err := readInput(path, domain.TranscriptExtensions)
		if err != nil {
			return input, err
		}
		input.Transcripts = append(input.Transcripts, file)
	}
	if opts.audioPath != "" {
		file, err := readInput(opts.audioPath, domain.AudioExtensions)
		if err != nil {
			return input, err
		}
		input.Audio = &file
	}
	if opts.segmentation != "" {
		file, err := readInput(opts.segmentation, domain.SegmentationExtensions)
		if err != nil {
			return input, err
		}
		input.Segmentation = &file
	}
	return input, nil
}

func readInput(path string, exts []string) (domain.InputFile, error) {
	if !domain.HasExtension(path, exts) {
		slog.Warn("unexpected_file_extension", "path", path, "expected", strings.Join(exts, " "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.InputFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.InputFile{Name: filepath.Base(path), Data: data}, nil
}

func writeWorkbook(path string, snapshot domain.BatchSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := xlsx.WriteReport(f, snapshot, xlsx.Options{ShowConfidence: true}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func printTable(snapshot domain.BatchSnapshot) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tPREDICTION\tCONFIDENCE\tMODEL")
	for i, r := range snapshot.Results {
		if r.Failed {
			fmt.Fprintf(tw, "%d\t%s\tFAILED: %s\t-\t-\n", i+1, r.Filename, r.FailureMessage)
			continue
		}
		confidence := "-"
		if r.Confidence != nil {
			confidence = fmt.Sprintf("%.1f%%", *r.Confidence*100)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Filename, r.PredictionLabel, confidence, r.ModelUsed)
	}
	_ = tw.Flush()

	s := snapshot.Summary
	fmt.Printf("\n%d files: %d positive, %d negative, %d failed\n", s.Total, s.Positive, s.Negative, s.Failed)
}
