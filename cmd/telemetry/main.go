package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/telemetry.report/internal/api"
	"github.com/banshee-data/telemetry.report/internal/config"
	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/framing"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/pipeline"
	"github.com/banshee-data/telemetry.report/internal/sensor"
	"github.com/banshee-data/telemetry.report/internal/serialmux"
	"github.com/banshee-data/telemetry.report/internal/store"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
	"github.com/banshee-data/telemetry.report/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to a JSON configuration file")
	portFlag      = flag.String("port", config.DefaultPort, "Serial port to use (ignored in dev mode)")
	framingFlag   = flag.String("framing", config.DefaultFraming, "Frame delimiting on the serial stream: raw, cobs or line")
	listen        = flag.String("listen", config.DefaultListen, "Listen address")
	devMode       = flag.Bool("dev", false, "Generate synthetic sensor packets instead of reading a device")
	disableSerial = flag.Bool("disable-serial", false, "Run the HTTP interface without a serial device")
	profileFlag   = flag.String("profile", "", "Device profile from the database to take port settings from")
	dbPath        = flag.String("db-path", config.DefaultDBPath, "Path to the device profile database")
	listPorts     = flag.Bool("list-ports", false, "List available serial ports and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	rawLog        = flag.String("raw-log", "", "Append one hex line per decoded frame to this file")
	mockInterval  = flag.Duration("dev-interval", 200*time.Millisecond, "Packet interval in dev mode")
	serviceAction = flag.String("service", "", "Manage the system service: "+strings.Join(service.ControlAction[:], ", "))
)

func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("%v", err)
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if *serviceAction != "" || !service.Interactive() {
		if err := runService(*serviceAction); err != nil {
			log.Fatalf("service: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

// run loads configuration, opens the device and serves until ctx is done.
func run(ctx context.Context) error {
	cfg := config.EmptyConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	flags := flagValues{
		Port:    *portFlag,
		Framing: *framingFlag,
		Listen:  *listen,
		DBPath:  *dbPath,
		Profile: *profileFlag,
		set:     setFlags(),
	}
	if flags.isSet("db-path") {
		cfg.DBPath = dbPath
	}

	var database *db.DB
	if needsDatabase(cfg, flags) {
		var err error
		if database, err = db.NewDB(cfg.GetDBPath()); err != nil {
			return fmt.Errorf("failed to open profile database: %w", err)
		}
		defer database.Close()
	}

	if name := profileName(cfg, flags); name != "" {
		profile, err := database.GetProfile(name)
		if err != nil {
			return fmt.Errorf("failed to load device profile: %w", err)
		}
		if err := applyProfile(cfg, profile); err != nil {
			return fmt.Errorf("invalid device profile %q: %w", name, err)
		}
		log.Printf("using device profile %q (%s)", profile.Name, profile.PortPath)
	}
	if err := applyFlags(cfg, flags); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	s := resolveSettings(cfg)
	if *devMode && !*disableSerial {
		if err := checkDevInterval(*mockInterval); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewPipelineMetrics(registry)
	counters := pipeline.NewCounters(metrics)

	decoder, err := framing.NewDecoder(s.Framing, s.Accumulator, counters.DecoderOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create frame decoder: %w", err)
	}
	muxOpts := []serialmux.Option{
		serialmux.WithQueueSize(s.QueueSize),
		serialmux.WithReadBufferSize(s.ReadBuffer),
		serialmux.WithMetrics(metrics),
	}

	var sensorSerial serialmux.SerialMuxInterface
	switch {
	case *disableSerial:
		log.Printf("serial input disabled")
		sensorSerial = serialmux.NewDisabledSerialMux()
	case *devMode:
		log.Printf("dev mode: generating %s framed packets every %v", s.Framing, *mockInterval)
		sensorSerial = serialmux.NewMockSerialMux(decoder, *mockInterval, muxOpts...)
	default:
		realSerial, err := serialmux.NewRealSerialMux(s.Port, s.PortOptions, decoder, muxOpts...)
		if err != nil {
			return fmt.Errorf("failed to open serial port: %w", err)
		}
		sensorSerial = realSerial
		log.Printf("reading %s at %d baud, %s framing", s.Port, s.PortOptions.BaudRate, s.Framing)
	}
	defer sensorSerial.Close()

	var rawLogFile *os.File
	if *rawLog != "" {
		f, err := os.OpenFile(*rawLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open raw log: %w", err)
		}
		defer f.Close()
		rawLogFile = f
	}

	st := store.New()
	parser := sensor.NewParser(nil)
	driver := pipeline.New(sensorSerial, parser, st, pipeline.WithCounters(counters))

	apiOpts := []api.Option{
		api.WithFraming(s.Framing),
		api.WithStats(driver.Stats),
		api.WithGatherer(registry),
	}
	if database != nil {
		apiOpts = append(apiOpts, api.WithDB(database))
	}
	mux := api.NewServer(sensorSerial, st, parser.Registry(), apiOpts...).ServeMux()
	sensorSerial.AttachAdminRoutes(mux)
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("database admin routes unavailable: %v", err)
		}
	}

	server := &http.Server{
		Addr:              s.Listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Listen, err)
	}

	// Create a wait group for the HTTP server, pipeline, and raw log routines
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// run the pipeline: serial monitor plus parse/store loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx); err != nil {
			log.Printf("pipeline stopped with error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	if rawLogFile != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := writeRawLog(ctx, sensorSerial, rawLogFile, timeutil.RealClock{}); err != nil {
				log.Printf("raw log stopped: %v", err)
			}
			log.Print("raw log routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// Serve in a goroutine so shutdown can be driven by ctx
		go func() {
			log.Printf("listening on %s", s.Listen)
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server failed: %v", err)
				cancel()
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}
