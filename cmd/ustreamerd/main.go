package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	_ "net/http/pprof"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpcomdev/ustreamerd/internal/blank"
	"github.com/warpcomdev/ustreamerd/internal/capture"
	"github.com/warpcomdev/ustreamerd/internal/configwatch"
	"github.com/warpcomdev/ustreamerd/internal/encoder"
	"github.com/warpcomdev/ustreamerd/internal/frame"
	"github.com/warpcomdev/ustreamerd/internal/httpserver"
	"github.com/warpcomdev/ustreamerd/internal/memsink"
	"github.com/warpcomdev/ustreamerd/internal/orchestrator"
	"github.com/warpcomdev/ustreamerd/internal/ring"
	"github.com/warpcomdev/ustreamerd/internal/servicelog"
	"github.com/warpcomdev/ustreamerd/internal/workerpool"
)

var startMetric = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ustreamerd_start_timestamp_seconds",
	Help: "Start timestamp of the daemon (unix seconds)",
})

type program struct {
	cancel context.CancelFunc
	done   chan struct{}
	run    func(ctx context.Context)
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.run(ctx)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	<-p.done
	return nil
}

func main() {
	configPath := flag.String("config", "ustreamerd.json", "path to the JSON configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("can't load config: %v", err)
	}
	if err := cfg.Check(*configPath); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	svcConfig := &service.Config{
		Name:        "ustreamerd",
		DisplayName: "ustreamerd streaming service",
		Description: "Low-latency MJPEG/H.264 streaming daemon",
	}

	prog := &program{run: func(ctx context.Context) { run(ctx, cfg, *configPath) }}
	svc, err := service.New(prog, svcConfig)
	if err != nil {
		log.Fatalf("can't initialize service wrapper: %v", err)
	}
	svcLogger, err := svc.Logger(nil)
	if err != nil {
		log.Fatalf("can't initialize service logger: %v", err)
	}

	logger := servicelog.New(svcLogger, cfg.LogFolder+"/ustreamerd.log", cfg.Debug)
	logger.Info("starting ustreamerd", servicelog.Int("port", cfg.Port))

	startMetric.Set(float64(time.Now().Unix()))

	if err := svc.Run(); err != nil {
		logger.Fatal("service exited", servicelog.Error(err))
	}
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	defer f.Close()
	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &cfg, nil
}

func run(ctx context.Context, cfg *Config, configPath string) {
	logger := servicelog.New(nil, cfg.LogFolder+"/ustreamerd.log", cfg.Debug)

	src := capture.NewFakeSource(uint32(cfg.Width), uint32(cfg.Height), cfg.DesiredFPS)
	if err := capture.StartWithBackoff(ctx, src, logger); err != nil {
		logger.Fatal("capture start failed", servicelog.Error(err))
	}
	defer src.Stop()

	requestedType, err := encoder.ParseType(cfg.EncoderType)
	if err != nil {
		logger.Fatal("invalid encoder type", servicelog.Error(err))
	}
	facade := encoder.NewFacade(requestedType, cfg.Quality, nil, nil)
	resolvedType, workers := facade.Open(frame.RawYUYV, cfg.Workers)
	logger.Info("encoder resolved", servicelog.String("type", resolvedType.String()), servicelog.Int("workers", workers))

	if _, err := os.Stat(configPath); err == nil {
		go configwatch.Watch(configPath, func() {
			reloaded, err := loadConfig(configPath)
			if err != nil || reloaded.Check(configPath) != nil {
				logger.Warn("config reload skipped, invalid file", servicelog.Error(err))
				return
			}
			facade.SetQuality(reloaded.Quality)
			logger.Info("applied reloaded quality", servicelog.Int("quality", reloaded.Quality))
		}, logger, ctx.Done())
	}

	ringBuf := ring.New(cfg.RingCapacity, cfg.Width*cfg.Height*2)

	var sinks []orchestrator.Sink
	if cfg.JPEGSinkObject != "" {
		sink, err := memsink.Open("jpeg", cfg.JPEGSinkObject, true, 0o660, cfg.sinkClientTTL(), cfg.sinkTimeout(), "")
		if err != nil {
			logger.Error("jpeg sink open failed", servicelog.Error(err))
		} else {
			defer sink.Close(true)
			sinks = append(sinks, sink)
		}
	}

	blankGen := blank.New()

	// orch is assigned below; the pool's completion callback only needs
	// to exist by the time a worker finishes its first job.
	var orch *orchestrator.Orchestrator
	pool := workerpool.New(workers, 0, facade.Run, func(id int, dst *frame.Frame) {
		orch.OnEncoded(id, dst)
	}, logger)
	defer pool.Stop()

	httpCfg := httpserver.Config{
		DesiredFPS:     cfg.DesiredFPS,
		DropSameFrames: cfg.DropSameFrames,
		AuthToken:      cfg.AuthToken,
		TCPNoDelay:     cfg.TCPNoDelay,
	}
	httpSrv := httpserver.NewServer(httpCfg, ringBuf, nil, logger)

	orchCfg := orchestrator.Config{
		DesiredFPS:      cfg.DesiredFPS,
		Slowdown:        cfg.Slowdown,
		SlowdownFactor:  cfg.SlowdownFactor,
		ExitOnNoClients: cfg.exitOnNoClients(),
	}
	orch = orchestrator.New(src, pool, ringBuf, blankGen, sinks, workers, orchCfg, logger)
	orch.HasHTTPClients = httpSrv.HasClients
	orch.LoopBreak = func() {
		logger.Info("exiting: no clients for configured duration")
	}

	go orch.Run(ctx)
	go httpSrv.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/", http.DefaultServeMux)
	// Every request to the streaming surface resets the orchestrator's
	// ExitOnNoClients timer.
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orch.NoteRequest()
		httpSrv.ServeHTTP(w, r)
	}))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", servicelog.Int("port", cfg.Port))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server exited", servicelog.Error(err))
	}
}
