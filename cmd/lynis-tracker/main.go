package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sloppy/lynistracker/internal/compliance"
	"github.com/sloppy/lynistracker/internal/config"
	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/events"
	"github.com/sloppy/lynistracker/internal/export"
	"github.com/sloppy/lynistracker/internal/ingest"
	"github.com/sloppy/lynistracker/internal/logging"
	"github.com/sloppy/lynistracker/internal/metrics"
	"github.com/sloppy/lynistracker/internal/query"
	"github.com/sloppy/lynistracker/internal/web"
)

const shutdownTimeout = 10 * time.Second

func usage() string {
	return "Usage: lynis-tracker <serve|licenses|import|parse|evaluate|rules|export>"
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(out, usage())
		return 1
	}

	command := strings.ToLower(args[1])
	switch command {
	case "serve":
		return runServe(args[2:], out, errOut)
	case "licenses":
		return runLicenses(args[2:], out, errOut)
	case "import":
		return runImport(args[2:], out, errOut)
	case "parse":
		return runParse(args[2:], out, errOut)
	case "evaluate":
		return runEvaluate(args[2:], out, errOut)
	case "rules":
		return runRules(args[2:], out, errOut)
	case "export":
		return runExport(args[2:], out, errOut)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage())
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n", command)
		fmt.Fprintln(out, usage())
		return 1
	}
}

func runServe(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "path to YAML config file")
	dbPath := fs.String("db", "", "path to database file")
	addr := fs.String("addr", "", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(errOut, "load config: %v\n", err)
		return 1
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return 1
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(errOut, "open db: %v\n", err)
		return 1
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := newPipeline(cfg, database, logger)
	if err != nil {
		fmt.Fprintf(errOut, "pipeline: %v\n", err)
		return 1
	}
	pipeline.Metrics = metrics.New(reg)

	publishers := events.Multi{events.LogPublisher{Logger: logger}}
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			fmt.Fprintf(errOut, "nats: %v\n", err)
			return 1
		}
		defer nc.Close()
		publishers = append(publishers, nc)
	}
	pipeline.Publisher = publishers

	server := web.NewServer(pipeline, reg, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	fmt.Fprintf(out, "listening on http://%s\n", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(errOut, "serve: %v\n", err)
		return 1
	}
	return 0
}

// newPipeline builds an upload pipeline without metrics or publishers.
func newPipeline(cfg config.Config, database *db.DB, logger *slog.Logger) (*ingest.Pipeline, error) {
	parser, err := cfg.Parser()
	if err != nil {
		return nil, err
	}
	parser.Logger = logger
	cache, err := query.NewCache(cfg.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	return &ingest.Pipeline{
		DB:             database,
		Parser:         parser,
		Evaluator:      &compliance.Evaluator{Queries: cache},
		Logger:         logger,
		MaxReportBytes: cfg.MaxReportBytes,
	}, nil
}

// loadConfig consumes --config and --db from args.
func loadConfig(args []string) (config.Config, []string, error) {
	configPath, remaining, err := extractFlag(args, "config", "")
	if err != nil {
		return config.Config{}, nil, err
	}
	dbPath, remaining, err := extractFlag(remaining, "db", "")
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return config.Config{}, nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, remaining, nil
}

func runLicenses(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	maxDevices, remaining, err := extractFlag(remaining, "max-devices", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(remaining) < 1 {
		fmt.Fprintln(errOut, "licenses command requires subcommand: list|create <name>")
		return 1
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(errOut, "open db: %v\n", err)
		return 1
	}
	defer database.Close()

	sub := remaining[0]
	switch sub {
	case "list":
		licenses, err := database.ListLicenses()
		if err != nil {
			fmt.Fprintf(errOut, "list licenses: %v\n", err)
			return 1
		}
		for _, l := range licenses {
			count, err := database.CountDevices(l.ID)
			if err != nil {
				fmt.Fprintf(errOut, "count devices: %v\n", err)
				return 1
			}
			limit := "unlimited"
			if l.MaxDevices != nil {
				limit = strconv.Itoa(*l.MaxDevices)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\tactive=%t\tdevices=%d/%s\n", l.ID, l.Key, l.Name, l.Active, count, limit)
		}
		return 0
	case "create":
		if len(remaining) < 2 {
			fmt.Fprintln(errOut, "licenses create requires a name")
			return 1
		}
		lic := db.License{Name: strings.Join(remaining[1:], " "), Active: true}
		if maxDevices != "" {
			n, err := strconv.Atoi(maxDevices)
			if err != nil || n < 0 {
				fmt.Fprintf(errOut, "invalid --max-devices %q\n", maxDevices)
				return 1
			}
			lic.MaxDevices = &n
		}
		created, err := database.CreateLicense(lic, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(errOut, "create license: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "created license %s\t%s\n", created.Key, created.Name)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown licenses subcommand: %s\n", sub)
		return 1
	}
}

func runImport(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	var licenseKey, hostID, hostID2 string
	for _, f := range []struct {
		name string
		dst  *string
	}{{"license", &licenseKey}, {"hostid", &hostID}, {"hostid2", &hostID2}} {
		*f.dst, remaining, err = extractFlag(remaining, f.name, "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	if licenseKey == "" {
		fmt.Fprintln(errOut, "import requires --license")
		return 1
	}
	if len(remaining) != 1 {
		fmt.Fprintln(errOut, "import requires a report file path")
		return 1
	}
	filePath := remaining[0]
	if !filepath.IsAbs(filePath) {
		if abs, err := filepath.Abs(filePath); err == nil {
			filePath = abs
		}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return 1
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(errOut, "open db: %v\n", err)
		return 1
	}
	defer database.Close()

	pipeline, err := newPipeline(cfg, database, logger)
	if err != nil {
		fmt.Fprintf(errOut, "pipeline: %v\n", err)
		return 1
	}
	pipeline.Publisher = events.LogPublisher{Logger: logger}

	stats, err := pipeline.UploadFile(context.Background(), licenseKey, hostID, hostID2, filePath, time.Now())
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	verb := "updated"
	if stats.Created {
		verb = "created"
	}
	fmt.Fprintf(out, "imported %s: %s device %d (%s), %d facts, %s\n",
		filepath.Base(filePath), verb, stats.DeviceID, stats.Hostname, stats.Facts, compliance.StatusLabel(stats.Compliant))
	return 0
}

func runParse(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(remaining) != 1 {
		fmt.Fprintln(errOut, "parse requires a report file path")
		return 1
	}
	parser, err := cfg.Parser()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	data, err := os.ReadFile(remaining[0])
	if err != nil {
		fmt.Fprintf(errOut, "read report: %v\n", err)
		return 1
	}
	res := parser.Parse(string(data), time.Now())
	if res.Degraded {
		fmt.Fprintf(errOut, "warning: report parsed partially: %v\n", res.Err)
	}
	return writeJSON(out, errOut, res.Facts)
}

func runEvaluate(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	rulesPath, remaining, err := extractFlag(remaining, "rules", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if rulesPath == "" {
		fmt.Fprintln(errOut, "evaluate requires --rules")
		return 1
	}
	if len(remaining) != 1 {
		fmt.Fprintln(errOut, "evaluate requires a report file path")
		return 1
	}
	groups, err := compliance.LoadGroups(rulesPath)
	if err != nil {
		fmt.Fprintf(errOut, "load rules: %v\n", err)
		return 1
	}
	parser, err := cfg.Parser()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	data, err := os.ReadFile(remaining[0])
	if err != nil {
		fmt.Fprintf(errOut, "read report: %v\n", err)
		return 1
	}
	cache, err := query.NewCache(cfg.QueryCacheSize)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	res := parser.Parse(string(data), time.Now())
	evaluator := &compliance.Evaluator{Queries: cache}
	return writeJSON(out, errOut, evaluator.Evaluate(groups, res.Facts))
}

func runRules(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	licenseKey, remaining, err := extractFlag(remaining, "license", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(remaining) != 2 || remaining[0] != "load" {
		fmt.Fprintln(errOut, "rules command requires: load --license KEY <groups.yaml>")
		return 1
	}
	if licenseKey == "" {
		fmt.Fprintln(errOut, "rules load requires --license")
		return 1
	}
	groups, err := compliance.LoadGroups(remaining[1])
	if err != nil {
		fmt.Fprintf(errOut, "load rules: %v\n", err)
		return 1
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(errOut, "open db: %v\n", err)
		return 1
	}
	defer database.Close()

	lic, found, err := database.GetLicenseByKey(licenseKey)
	if err != nil {
		fmt.Fprintf(errOut, "find license: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintf(errOut, "license %q not found; create it first via licenses create\n", licenseKey)
		return 1
	}
	err = database.InTx(func(tx *db.Tx) error {
		_, err := tx.ReplaceRuleGroups(lic.ID, groups, time.Now().UTC())
		return err
	})
	if err != nil {
		fmt.Fprintf(errOut, "store rules: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "loaded %d rule groups for license %s\n", len(groups), lic.Name)
	return 0
}

func runExport(args []string, out, errOut io.Writer) int {
	cfg, remaining, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	licenseKey, remaining, err := extractFlag(remaining, "license", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	format, remaining, err := extractFlag(remaining, "format", export.FormatJSON)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	outputPath, remaining, err := extractFlag(remaining, "o", "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outputPath == "" {
		outputPath, remaining, err = extractFlag(remaining, "output", "")
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	if licenseKey == "" {
		fmt.Fprintln(errOut, "export requires --license")
		return 1
	}
	if outputPath == "" {
		fmt.Fprintln(errOut, "export requires --output or -o")
		return 1
	}
	if len(remaining) > 0 {
		fmt.Fprintf(errOut, "unexpected arguments: %s\n", strings.Join(remaining, " "))
		return 1
	}
	format = strings.ToLower(format)
	switch format {
	case export.FormatJSON, export.FormatCSV, export.FormatText:
	default:
		fmt.Fprintf(errOut, "unknown export format: %s\n", format)
		return 1
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(errOut, "open db: %v\n", err)
		return 1
	}
	defer database.Close()

	lic, found, err := database.GetLicenseByKey(licenseKey)
	if err != nil {
		fmt.Fprintf(errOut, "find license: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintf(errOut, "license %q not found\n", licenseKey)
		return 1
	}
	pipeline, err := newPipeline(cfg, database, nil)
	if err != nil {
		fmt.Fprintf(errOut, "pipeline: %v\n", err)
		return 1
	}

	file, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(errOut, "create output: %v\n", err)
		return 1
	}
	defer file.Close()

	if err := export.Write(pipeline, lic, format, time.Now(), file); err != nil {
		fmt.Fprintf(errOut, "export %s: %v\n", format, err)
		return 1
	}
	fmt.Fprintf(out, "exported %s (%s)\n", outputPath, format)
	return 0
}

func writeJSON(out, errOut io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(errOut, "encode json: %v\n", err)
		return 1
	}
	return 0
}

// extractFlag finds a string flag (e.g., --db value) anywhere in args and returns its value and remaining args.
func extractFlag(args []string, name string, defaultVal string) (string, []string, error) {
	val := defaultVal
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--"+name || arg == "-"+name {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s flag requires a value", arg)
			}
			val = args[i+1]
			i++
			continue
		}
		remaining = append(remaining, arg)
	}
	return val, remaining, nil
}
