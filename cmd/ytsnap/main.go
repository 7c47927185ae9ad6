// Command ytsnap downloads a playlist or a single video from the command
// line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ytsnap/ytsnap/internal/config"
	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/downloader"
	"github.com/ytsnap/ytsnap/internal/history"
	"github.com/ytsnap/ytsnap/internal/metadata"
	"github.com/ytsnap/ytsnap/internal/orchestrator"
	"github.com/ytsnap/ytsnap/internal/proxy"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		outputDir   = flag.String("o", "./downloads", "Output directory")
		quality     = flag.String("quality", "", "Preferred quality label (e.g. 720p)")
		itag        = flag.Int("itag", 0, "Exact format itag (overrides -quality)")
		workers     = flag.Int("workers", 0, "Concurrent downloads (1-10, default from config)")
		proxyFile   = flag.String("proxy-file", "", "File with one proxy URL per line")
		noResume    = flag.Bool("no-resume", false, "Ignore existing download state and start fresh")
		configPath  = flag.String("config", "", "Path to config file")
		verbose     = flag.Bool("v", false, "Verbose logging")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: ytsnap [flags] <playlist or video URL or ID>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytsnap %s (built %s)\n", Version, BuildTime)
		return 0
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ytsnap: %v\n", err)
		return 1
	}
	if *proxyFile != "" {
		cfg.Proxy.File = *proxyFile
	}

	// The positional argument may name a playlist or a single video.
	target := flag.Arg(0)
	playlistRef, playlistErr := domain.ParsePlaylistRef(target)
	var videoRef domain.VideoRef
	if playlistErr != nil {
		var videoErr error
		videoRef, videoErr = domain.ParseVideoRef(target)
		if videoErr != nil {
			fmt.Fprintf(os.Stderr, "ytsnap: %q is not a playlist or video URL or ID\n", target)
			return 2
		}
	}

	workersSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			workersSet = true
		}
	})
	if !workersSet {
		*workers = cfg.Worker.MaxWorkers
	}

	pool, err := buildPool(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ytsnap: %v\n", err)
		return 1
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ytsnap: %v\n", err)
			return 1
		}
		defer hist.Close()
	}

	client := metadata.NewClient(metadata.Config{
		Timeout:           cfg.Download.RequestTimeout,
		RequestsPerSecond: 2,
	}, logger)
	worker := downloader.NewWorker(client, pool, cfg.Download, logger)
	orch := orchestrator.New(client, worker, hist, cfg.Worker, logger)

	var sink orchestrator.ProgressSink = orchestrator.NopSink{}
	if term.IsTerminal(int(os.Stdout.Fd())) || *verbose {
		sink = orchestrator.NewConsoleSink(os.Stdout)
	}

	// First SIGINT cancels the run; outcomes already recorded stay flushed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := orchestrator.Options{
		OutputDir:    *outputDir,
		Quality:      *quality,
		Itag:         *itag,
		MaxWorkers:   *workers,
		Resume:       !*noResume,
		Progress:     sink,
		MinFreeBytes: cfg.Storage.MinFreeBytes,
	}
	var result *orchestrator.Result
	if playlistErr == nil {
		result, err = orch.DownloadPlaylist(ctx, playlistRef, opts)
	} else {
		result, err = orch.DownloadVideo(ctx, videoRef, opts)
	}
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "ytsnap: interrupted, state saved; rerun to resume")
			return 130
		}
		fmt.Fprintf(os.Stderr, "ytsnap: %v\n", err)
		return 1
	}
	if result != nil && len(result.Failed) > 0 {
		return 1
	}
	return 0
}

func printSummary(result *orchestrator.Result) {
	fmt.Printf("\n%s\n", result.PlaylistTitle)
	fmt.Printf("  completed: %d\n", len(result.Completed))
	fmt.Printf("  failed:    %d\n", len(result.Failed))
	if result.Skipped > 0 {
		fmt.Printf("  skipped:   %d (already downloaded)\n", result.Skipped)
	}
	for _, id := range result.Failed {
		fmt.Printf("  failed video: %s\n", id)
	}
}

func buildPool(cfg *config.Config, logger *slog.Logger) (*proxy.Pool, error) {
	opts := proxy.Options{
		FailureThreshold: cfg.Proxy.FailureThreshold,
		CooldownBase:     cfg.Proxy.CooldownBase,
		CooldownMax:      cfg.Proxy.CooldownMax,
	}
	if cfg.Proxy.File == "" {
		return proxy.NewPool(nil, opts, logger), nil
	}

	configs, err := proxy.ParseFile(cfg.Proxy.File)
	if err != nil {
		return nil, err
	}
	pool := proxy.NewPool(configs, opts, logger)
	logger.Info("proxy pool loaded", "proxies", pool.Size(), "file", cfg.Proxy.File)

	if cfg.Proxy.HealthCheck {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		pool.HealthCheck(ctx, proxy.HealthCheckOptions{
			URL:     cfg.Proxy.HealthCheckURL,
			Timeout: cfg.Proxy.HealthCheckTimeout,
		})
	}
	return pool, nil
}
