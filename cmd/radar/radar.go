package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/urad/internal/config"
	"github.com/banshee-data/urad/internal/detectmux"
	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/poller"
	"github.com/banshee-data/urad/internal/serialport"
	"github.com/banshee-data/urad/internal/urad"
	"github.com/banshee-data/urad/internal/uradsim"
	"github.com/banshee-data/urad/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Use a simulated radar instead of the serial port")
	listen      = flag.String("listen", "", "Debug HTTP listen address, e.g. localhost:8080 (empty disables)")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	configPath  = flag.String("config", "", "Radar config file (.json, .yaml or .yml)")
	interval    = flag.Duration("interval", 0, "Pause between detections (overrides the config file)")
	verbose     = flag.Bool("verbose", false, "Log every byte exchanged with the radar")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// runOptions carries the parsed flags into run.
type runOptions struct {
	dev        bool
	listen     string
	port       string
	configPath string
	interval   time.Duration
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, runOptions{
		dev:        *devMode,
		listen:     *listen,
		port:       *port,
		configPath: *configPath,
		interval:   *interval,
	}, os.Stdout)
	if err != nil {
		log.Printf("🛑 %v", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads path, or returns an empty config so every Get* accessor
// yields its default.
func loadConfig(path string, interval time.Duration) (*config.RadarConfig, error) {
	cfg := config.EmptyRadarConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadRadarConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if interval > 0 {
		s := interval.String()
		cfg.PollInterval = &s
	}
	return cfg, nil
}

func openTransport(o runOptions, cfg *config.RadarConfig) (*serialport.Transport, error) {
	if o.dev {
		log.Printf("using simulated radar")
		return serialport.NewTransport(uradsim.NewDevice(time.Now().UnixNano())), nil
	}
	if o.port == "" {
		return nil, errors.New("serial port is required")
	}
	t, err := serialport.OpenTransport(serialport.NewRealSerialPortFactory(), o.port, cfg.GetPortOptions())
	if err != nil {
		return nil, err
	}
	log.Printf("opened serial port %s", o.port)
	return t, nil
}

func newPoller(cfg *config.RadarConfig, t urad.Transport, mux *detectmux.Mux, out io.Writer) (*poller.Poller, error) {
	radar, err := urad.BuildConfig(cfg.Params())
	if err != nil {
		return nil, fmt.Errorf("invalid radar parameters: %w", err)
	}
	opts := poller.Options{
		Interval:               cfg.GetPollInterval(),
		MaxConsecutiveFailures: cfg.GetMaxConsecutiveFailures(),
		StartRetries:           uint64(cfg.GetStartRetries()),
		Session: []urad.Option{
			urad.WithReadTimeout(cfg.GetReadTimeout()),
			urad.WithSettleDelay(cfg.GetSettleDelay()),
		},
	}
	return poller.New(t, radar, opts,
		poller.WithMux(mux),
		poller.WithOutput(out),
		poller.WithSpeedUnit(cfg.GetSpeedUnit()),
	), nil
}

// newDebugMux serves the detection debug routes and a version page.
func newDebugMux(mux *detectmux.Mux) *http.ServeMux {
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	httpMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, version.String()+"\n")
	})
	return httpMux
}

func serveDebug(ctx context.Context, addr string, mux *detectmux.Mux) {
	server := &http.Server{
		Addr:    addr,
		Handler: newDebugMux(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()
	log.Printf("debug server listening on %s", addr)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}

// run polls the radar until ctx is cancelled or the poll loop fails, then
// turns the radar off and waits for the debug server to stop.
func run(ctx context.Context, o runOptions, out io.Writer) error {
	cfg, err := loadConfig(o.configPath, o.interval)
	if err != nil {
		return err
	}

	transport, err := openTransport(o, cfg)
	if err != nil {
		return err
	}
	defer transport.Close()

	mux := detectmux.New()
	defer mux.Close()

	p, err := newPoller(cfg, transport, mux, out)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var runErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		// stop the debug server too when the loop gives up
		defer cancel()
		runErr = p.Run(ctx)
		log.Print("poll routine terminated")
	}()

	if o.listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, o.listen, mux)
		}()
	}

	wg.Wait()
	if runErr != nil {
		return runErr
	}
	log.Printf("✅ radar turned off, graceful shutdown complete")
	return nil
}
