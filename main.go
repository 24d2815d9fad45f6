package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/probelab/latmon/config"
	"github.com/probelab/latmon/csvlog"
	"github.com/probelab/latmon/monitor"
	"github.com/probelab/latmon/probe"
)

const version string = "0.1.0"

var (
	showVersion    = kingpin.Flag("version", "Print version information").Default().Bool()
	listenAddress  = kingpin.Flag("web.listen-address", "Address on which to expose metrics and web interface").Default(":9437").String()
	metricsPath    = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics").Default("/metrics").String()
	configFile     = kingpin.Flag("config.path", "Path to config file").Default("").String()
	probeInterval  = kingpin.Flag("probe.interval", "Interval between probes").Default("1s").Duration()
	probeTimeout   = kingpin.Flag("probe.timeout", "Timeout for a single probe").Default("800ms").Duration()
	probeSource    = kingpin.Flag("probe.source", "Probe source implementation. Valid choices: [icmp, sim]").Default(config.SourceICMP).String()
	probeIface     = kingpin.Flag("probe.interface", "Network interface for side-channel drop/error counters (empty to disable)").Default("").String()
	windowCapacity = kingpin.Flag("window.capacity", "Number of recent samples to keep per target").Default("300").Int()
	warningMs      = kingpin.Flag("alert.warning-threshold-ms", "Average RTT threshold for the warning state").Default("100").Float64()
	criticalMs     = kingpin.Flag("alert.critical-threshold-ms", "Average RTT threshold for the critical state").Default("200").Float64()
	hysteresis     = kingpin.Flag("alert.hysteresis", "Consecutive agreeing evaluations required for an alert state change").Default("3").Int()
	logFile        = kingpin.Flag("log.file", "Path to the CSV latency log (empty to disable)").Default("").String()
	logLevel       = kingpin.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error, fatal]").Default("info").String()
	rttMode        = kingpin.Flag("metrics.rttunit", "Export RTT metrics as either millis (default), or seconds (best practice), or both (for migrations). Valid choices: [ms, s, both]").Default("ms").String()
	targetFlag     = kingpin.Arg("targets", "A list of targets to probe").Strings()
)

func main() {
	kingpin.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	setLogLevel(*logLevel)

	rttScale := rttUnitFromString(*rttMode)
	if rttScale == rttInvalid {
		kingpin.FatalUsage("metrics.rttunit must be `ms` for millis, or `s` for seconds, or `both`")
	}

	cfg, err := loadConfig()
	if err != nil {
		kingpin.FatalUsage("could not load config.path: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		kingpin.FatalUsage("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := newLatencyCollector(cfg.Targets, rttScale)

	sup := &supervisor{ctx: ctx, collector: collector}
	if err := sup.apply(cfg); err != nil {
		log.Errorln(err)
		os.Exit(2)
	}

	if *configFile != "" {
		go watchConfig(ctx, *configFile, sup)
	}

	startServer(ctx, collector)

	sup.shutdown()
}

func printVersion() {
	fmt.Println("latmon")
	fmt.Printf("Version: %s\n", version)
	fmt.Println("Latency monitor with rolling statistics and hysteresis alerting")
}

// supervisor owns the set of running monitors and swaps it out on
// configuration reload.
type supervisor struct {
	ctx       context.Context
	collector *latencyCollector

	mtx sync.Mutex
	rt  *runtime
}

// apply stops the current monitors (if any) and starts a new set for
// cfg. On error the previous monitors are already stopped; the caller
// decides whether that is fatal.
func (s *supervisor) apply(cfg *config.Config) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.rt != nil {
		s.rt.stop()
		s.rt = nil
	}
	s.collector.configure(cfg.Targets)

	rt, err := startMonitors(s.ctx, cfg, s.collector)
	if err != nil {
		return err
	}
	s.rt = rt
	return nil
}

func (s *supervisor) shutdown() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.rt != nil {
		s.rt.stop()
		s.rt = nil
	}
}

// runtime is one generation of running monitors together with the
// resources they hold.
type runtime struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []io.Closer
}

func (r *runtime) stop() {
	r.cancel()
	r.wg.Wait()
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			log.Errorf("error on close: %v", err)
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func startMonitors(ctx context.Context, cfg *config.Config, collector *latencyCollector) (*runtime, error) {
	ctx, cancel := context.WithCancel(ctx)
	rt := &runtime{cancel: cancel}

	var recorder monitor.Recorder
	if cfg.Log.File != "" {
		w, err := csvlog.Open(cfg.Log.File)
		if err != nil {
			rt.stop()
			return nil, fmt.Errorf("cannot start monitoring: %w", err)
		}
		rt.closers = append(rt.closers, w)
		recorder = w
	}

	var counters *probe.IfaceCounters
	if cfg.Probe.Interface != "" {
		c, err := probe.NewIfaceCounters(cfg.Probe.Interface)
		if err != nil {
			rt.stop()
			return nil, fmt.Errorf("cannot start monitoring: %w", err)
		}
		counters = c
	}

	notifier := monitor.MultiNotifier(logNotifier{}, collector)

	for i, target := range cfg.Targets {
		source, err := newSource(cfg, target.Addr, int64(i), counters, rt)
		if err != nil {
			rt.stop()
			return nil, fmt.Errorf("cannot start monitoring: %w", err)
		}

		m, err := monitor.New(target.Addr, source, monitor.Config{
			WindowCapacity: cfg.Window.Capacity,
			Interval:       cfg.Probe.Interval.Duration(),
			Thresholds: monitor.Thresholds{
				WarningMs:  cfg.Alert.WarningMs,
				CriticalMs: cfg.Alert.CriticalMs,
				Hysteresis: cfg.Alert.Hysteresis,
			},
			Recorder: recorder,
			Feed:     collector,
			Notifier: notifier,
		})
		if err != nil {
			rt.stop()
			return nil, fmt.Errorf("cannot start monitoring: %w", err)
		}

		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			m.Run(ctx)
		}()
	}

	log.Infof("started %d monitor(s) (interval=%v, window=%d, thresholds=%g/%gms, hysteresis=%d)",
		len(cfg.Targets), cfg.Probe.Interval.Duration(), cfg.Window.Capacity,
		cfg.Alert.WarningMs, cfg.Alert.CriticalMs, cfg.Alert.Hysteresis)

	return rt, nil
}

func newSource(cfg *config.Config, addr string, seedOffset int64, counters *probe.IfaceCounters, rt *runtime) (monitor.Source, error) {
	if cfg.Probe.Source == config.SourceSim {
		log.Warnf("%s: using the synthetic probe source, latency values are simulated", addr)
		return probe.NewSimulator(time.Now().UnixNano() + seedOffset), nil
	}

	icmp, err := probe.NewICMP(addr, cfg.Probe.Timeout.Duration(), counters)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closerFunc(func() error {
		icmp.Close()
		return nil
	}))
	return icmp, nil
}

func startServer(ctx context.Context, collector *latencyCollector) {
	log.Infof("Starting latency monitor (Version: %s)", version)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, indexHTML, *metricsPath)
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	l := log.New()
	l.Level = log.ErrorLevel

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      l,
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux.Handle(*metricsPath, h)

	srv := &http.Server{Addr: *listenAddress, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("error shutting down http server: %v", err)
		}
	}()

	log.Infof("Listening for %s on %s", *metricsPath, *listenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := &config.Config{}
		addFlagToConfig(cfg)

		return cfg, nil
	}

	f, err := os.Open(*configFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load config file: %w", err)
	}
	defer f.Close()

	cfg, err := config.FromYAML(f)
	if err == nil {
		addFlagToConfig(cfg)
	}

	return cfg, err
}

// addFlagToConfig updates cfg with command line flag values, unless the
// config has non-zero values.
func addFlagToConfig(cfg *config.Config) {
	if len(cfg.Targets) == 0 {
		for _, t := range *targetFlag {
			cfg.Targets = append(cfg.Targets, config.TargetConfig{Addr: t})
		}
	}
	if cfg.Probe.Interval == 0 {
		cfg.Probe.Interval.Set(*probeInterval)
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout.Set(*probeTimeout)
	}
	if cfg.Probe.Source == "" {
		cfg.Probe.Source = *probeSource
	}
	if cfg.Probe.Interface == "" {
		cfg.Probe.Interface = *probeIface
	}
	if cfg.Window.Capacity == 0 {
		cfg.Window.Capacity = *windowCapacity
	}
	if cfg.Alert.WarningMs == 0 {
		cfg.Alert.WarningMs = *warningMs
	}
	if cfg.Alert.CriticalMs == 0 {
		cfg.Alert.CriticalMs = *criticalMs
	}
	if cfg.Alert.Hysteresis == 0 {
		cfg.Alert.Hysteresis = *hysteresis
	}
	if cfg.Log.File == "" {
		cfg.Log.File = *logFile
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
	<meta charset="UTF-8">
	<title>latmon (Version ` + version + `)</title>
</head>
<body>
	<h1>latmon</h1>
	<p><a href="%s">Metrics</a></p>
</body>
</html>
`
