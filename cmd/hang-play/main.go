// Command hang-play is a minimal player shell: it dials a MoQ-lite
// relay, consumes one named broadcast, and logs the orchestrator's
// status transitions. It does not render audio or video — decoding
// media is an explicit non-goal of this client — so it wires stand-in
// decoders that turn each frame into a trivial block, where a real
// platform integration would wire a codec.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okdaichi/hang/audio"
	"github.com/okdaichi/hang/broadcast"
	"github.com/okdaichi/hang/catalog"
	"github.com/okdaichi/hang/internal/version"
	"github.com/okdaichi/hang/media"
	"github.com/okdaichi/hang/observability"
	"github.com/okdaichi/hang/transport/moq"
	"github.com/okdaichi/hang/video"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

type config struct {
	RelayAddr       string
	Broadcast       string
	Reload          bool
	RenderLatencyMs int
	PixelBudget     int
	HealthCheckAddr string
	MetricsAddr     string
	Tracing         observability.Config
}

func main() {
	configFile := flag.String("config", "configs/hang-play.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Short())
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := observability.Setup(ctx, cfg.Tracing); err != nil {
		log.Fatalf("failed to set up observability: %v", err)
	}
	defer observability.Shutdown(context.Background())

	slog.Info("dialing relay", "address", cfg.RelayAddr, "broadcast", cfg.Broadcast)

	conn, err := moq.Dial(ctx, cfg.RelayAddr, &tls.Config{InsecureSkipVerify: true}, nil)
	if err != nil {
		log.Fatalf("failed to dial relay: %v", err)
	}
	defer conn.Close()

	var httpServer *http.Server
	if cfg.HealthCheckAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.Handler())
		httpServer = &http.Server{Addr: cfg.HealthCheckAddr, Handler: mux}
		go func() {
			slog.Info("health/metrics server starting", "address", cfg.HealthCheckAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("health server error", "error", err)
			}
		}()
	}

	decoders := broadcast.Decoders{
		Audio: countingAudioDecoder{},
		Video: countingVideoDecoder{},
	}

	consumer, err := broadcast.Start(ctx, conn, cfg.Broadcast, cfg.Reload, decoders,
		time.Duration(cfg.RenderLatencyMs)*time.Millisecond, cfg.PixelBudget, slog.Default())
	if err != nil {
		log.Fatalf("failed to start broadcast consumer: %v", err)
	}

	go logStatusTransitions(ctx, consumer)

	slog.Info("hang-play started", "version", version.Short())
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := consumer.Close(); err != nil {
		slog.Error("error closing consumer", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down health server", "error", err)
		}
	}
	slog.Info("hang-play stopped")
}

func logStatusTransitions(ctx context.Context, c *broadcast.Consumer) {
	status := c.Status()
	last := status.Peek()
	slog.Info("broadcast status", "status", last.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
			if cur := status.Peek(); cur != last {
				slog.Info("broadcast status changed", "status", cur.String())
				last = cur
			}
		}
	}
}

// countingAudioDecoder and countingVideoDecoder stand in for a
// platform codec: both turn each frame into a trivially-sized block
// (countingVideoDecoder also reports every rendition as supported) so
// the pipelines' reactive wiring can be exercised without a real
// decoder.
type countingAudioDecoder struct{}

func (countingAudioDecoder) Decode(_ context.Context, f media.Frame) (audio.PCMBlock, error) {
	return audio.PCMBlock{Timestamp: f.Timestamp, Channels: [][]float32{{0}}}, nil
}

type countingVideoDecoder struct{}

func (countingVideoDecoder) Probe(catalog.VideoConfig) bool { return true }
func (countingVideoDecoder) Decode(_ context.Context, f media.Frame) (video.DecodedFrame, error) {
	return video.DecodedFrame{Timestamp: f.Timestamp}, nil
}

func loadConfig(filename string) (*config, error) {
	type yamlConfig struct {
		Relay struct {
			Address string `yaml:"address"`
		} `yaml:"relay"`
		Broadcast struct {
			Name            string `yaml:"name"`
			Reload          bool   `yaml:"reload"`
			RenderLatencyMs int    `yaml:"render_latency_ms"`
			PixelBudget     int    `yaml:"pixel_budget"`
		} `yaml:"broadcast"`
		Server struct {
			HealthCheckAddr string `yaml:"health_check_addr"`
		} `yaml:"server"`
		Tracing struct {
			Service   string `yaml:"service"`
			TraceAddr string `yaml:"trace_addr"`
			LogAddr   string `yaml:"log_addr"`
			Metrics   bool   `yaml:"metrics"`
		} `yaml:"tracing"`
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var y yamlConfig
	if err := yaml.NewDecoder(file).Decode(&y); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if y.Broadcast.RenderLatencyMs == 0 {
		y.Broadcast.RenderLatencyMs = 200
	}

	return &config{
		RelayAddr:       y.Relay.Address,
		Broadcast:       y.Broadcast.Name,
		Reload:          y.Broadcast.Reload,
		RenderLatencyMs: y.Broadcast.RenderLatencyMs,
		PixelBudget:     y.Broadcast.PixelBudget,
		HealthCheckAddr: y.Server.HealthCheckAddr,
		Tracing: observability.Config{
			Service:   y.Tracing.Service,
			TraceAddr: y.Tracing.TraceAddr,
			LogAddr:   y.Tracing.LogAddr,
			Metrics:   y.Tracing.Metrics,
		},
	}, nil
}
