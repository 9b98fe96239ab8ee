package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"blotquant/internal/logging"
	"blotquant/pkg/analysis"
	"blotquant/pkg/config"
	"blotquant/pkg/export"
	"blotquant/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "blotquant.yaml", "Configuration file (defaults are used when missing)")
	planPath := flag.String("plan", "", "Analysis plan: images, passes and exclusions")
	outPath := flag.String("out", "results.xlsx", "Output table (.csv or .xlsx)")
	profileDir := flag.String("profile-dir", "", "Directory to save ROI and lane crops (disabled when empty)")
	workers := flag.Int("workers", 0, "Worker goroutines (default: configured value)")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *planPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Quantification.Workers = *workers
	}

	level := cfg.Output.LogLevel
	if cfg.Output.Verbose {
		level = "debug"
	}
	logger := logging.Setup(os.Stderr, logging.Options{Level: level, Format: cfg.Output.LogFormat})

	if err := run(cfg, logger, *planPath, *outPath, *profileDir); err != nil {
		logger.Error("Analysis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, planPath, outPath, profileDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plan, err := analysis.LoadPlan(planPath)
	if err != nil {
		return err
	}
	images, err := analysis.OpenImages(plan)
	if err != nil {
		return err
	}

	pipeline, err := analysis.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	startTime := time.Now()
	report, err := pipeline.Run(ctx, plan, images)
	if err != nil {
		return err
	}
	processingTime := time.Since(startTime)

	if err := export.WriteTable(outPath, report.Rows(), report.Stats); err != nil {
		return err
	}

	if profileDir != "" {
		if err := saveProfiles(pipeline, report, images, profileDir); err != nil {
			logger.Warn("Failed to save lane crops", slog.String("error", err.Error()))
		}
	}

	printSummary(report, outPath, processingTime)
	return nil
}

// saveProfiles writes ROI and lane crops of every pass of every image
func saveProfiles(p *analysis.Pipeline, report *analysis.Report, images []analysis.Image, dir string) error {
	viewers := make(map[string]*visualization.Viewer, len(images))
	for i, img := range images {
		// Images without an id were named by the run
		img.ID = report.Images[i]
		viewers[img.ID] = visualization.NewViewer(p.Prepare(img))
	}

	for _, pr := range report.Passes {
		v, ok := viewers[pr.ImageID]
		if !ok {
			continue
		}
		if err := v.SaveLaneSequence(pr.Layout, dir, pr.ImageID+"_"+pr.PassID); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(report *analysis.Report, outPath string, elapsed time.Duration) {
	fmt.Println("================================")
	fmt.Printf("Run %s completed in %.2f seconds\n", report.RunID, elapsed.Seconds())
	fmt.Printf("Results saved to: %s\n", outPath)
	fmt.Println("================================")

	for _, s := range report.Stats {
		r := s.Report
		fmt.Printf("\n%s (%s, reference %s)\n", s.Label, r.Test, r.Reference)
		for _, g := range r.Groups {
			fold := "n/a"
			if g.FoldDefined {
				fold = fmt.Sprintf("%.3f", g.FoldChange)
			}
			fmt.Printf("  %-20s N=%-3d mean=%.4f SEM=%.4f fold=%s\n", g.Name, g.N, g.Mean, g.SEM, fold)
		}
		if len(r.Sources) == 0 {
			fmt.Printf("  t=%.4f df=%.2f p=%.4g significant=%t\n", r.Statistic, r.DF, r.PValue, r.Significant)
		}
		for _, src := range r.Sources {
			fmt.Printf("  %-10s SS=%.4f df=%.0f F=%.4f p=%.4g\n", src.Name, src.SS, src.DF, src.F, src.P)
		}
	}

	if len(report.Warnings) > 0 {
		fmt.Printf("\n%d warning(s):\n", len(report.Warnings))
		for _, w := range report.Warnings {
			fmt.Printf("- %s\n", w)
		}
	}
}
