package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/brentwatch/internal/api"
	"github.com/lox/brentwatch/internal/forecast"
	"github.com/lox/brentwatch/internal/ingest"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/narrative"
	"github.com/lox/brentwatch/internal/report"
	"github.com/lox/brentwatch/internal/store"
)

type Globals struct {
	DB        string `help:"Path to SQLite database." default:"data/brentwatch.db" env:"BRENTWATCH_DB"`
	LogLevel  string `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"BRENTWATCH_LOG_LEVEL"`
	LogFormat string `help:"Log output format." default:"console" enum:"console,json" env:"BRENTWATCH_LOG_FORMAT"`
}

// Window holds the report interval and forecast window flags shared by
// the commands that build a report.
type Window struct {
	Start  string `help:"First day of the report interval." default:"2014-01-16" env:"BRENTWATCH_START"`
	End    string `help:"Last day of the report interval." default:"2024-01-16" env:"BRENTWATCH_END"`
	Cutoff string `help:"Forecast training cutoff; earlier prices train, later ones evaluate." default:"2024-01-16" env:"BRENTWATCH_CUTOFF"`
	Target string `help:"Date to forecast." default:"2024-12-31" env:"BRENTWATCH_TARGET"`
}

func (w Window) options() (report.Options, error) {
	opts := report.DefaultOptions()
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"start", w.Start, &opts.Start},
		{"end", w.End, &opts.End},
		{"cutoff", w.Cutoff, &opts.Forecast.Cutoff},
		{"target", w.Target, &opts.Forecast.Target},
	} {
		t, err := time.Parse(models.DateLayout, f.raw)
		if err != nil {
			return opts, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", f.name, f.raw)
		}
		*f.dst = t
	}
	if opts.End.Before(opts.Start) {
		return opts, fmt.Errorf("--end %s is before --start %s", w.End, w.Start)
	}
	return opts, nil
}

type cli struct {
	Globals

	Serve    serveCmd    `cmd:"" help:"Run the HTTP report server." default:"withargs"`
	Import   importCmd   `cmd:"" help:"Import a price spreadsheet and exit."`
	Forecast forecastCmd `cmd:"" help:"Fit the model on stored prices and print the forecast."`
	Export   exportCmd   `cmd:"" help:"Write the report's aggregate tables to an xlsx workbook."`
}

type serveCmd struct {
	Window
	Port      string `help:"HTTP server port." default:"8080" env:"BRENTWATCH_PORT"`
	Sheet     string `help:"Spreadsheet to import at startup." type:"existingfile" env:"BRENTWATCH_SHEET"`
	SourceURL string `help:"http(s) or ftp URL of the source spreadsheet, refreshed on a schedule." env:"BRENTWATCH_SOURCE_URL"`
	Refresh   string `help:"Cron schedule for source refresh." default:"0 6 * * *" env:"BRENTWATCH_REFRESH"`
	OpenAIKey string `help:"OpenAI API key; enables generated commentary." name:"openai-key" env:"OPENAI_API_KEY"`
}

func (c *serveCmd) Run(st *store.Store) error {
	opts, err := c.options()
	if err != nil {
		return err
	}

	importer := ingest.NewImporter(st)
	if c.Sheet != "" {
		if _, err := importer.ImportFile(c.Sheet); err != nil {
			return fmt.Errorf("import %s: %w", c.Sheet, err)
		}
	}

	server, err := api.NewServer(st, c.Port, opts)
	if err != nil {
		return err
	}
	if c.OpenAIKey != "" {
		server.SetCommentator(narrative.New(c.OpenAIKey))
		log.Info().Msg("narrative: generated commentary enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.SourceURL != "" {
		scheduler := ingest.NewScheduler(ingest.NewFetcher(), importer, c.SourceURL, c.Refresh)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler: stopped")
			}
		}()
	} else {
		log.Info().Msg("scheduler: no --source-url, refresh disabled")
	}

	return server.Run(ctx)
}

type importCmd struct {
	Sheet     string `arg:"" optional:"" help:"Spreadsheet to import." type:"existingfile"`
	SourceURL string `help:"Fetch the spreadsheet from this URL instead." env:"BRENTWATCH_SOURCE_URL"`
}

func (c *importCmd) Run(st *store.Store) error {
	importer := ingest.NewImporter(st)

	var batch *models.ImportBatch
	var err error
	switch {
	case c.Sheet != "":
		batch, err = importer.ImportFile(c.Sheet)
	case c.SourceURL != "":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		batch, err = ingest.NewScheduler(ingest.NewFetcher(), importer, c.SourceURL, "").RefreshOnce(ctx)
	default:
		return fmt.Errorf("import needs a sheet path or --source-url")
	}
	if err != nil {
		return err
	}
	fmt.Printf("imported %d prices from %s (%d rejected), batch %s\n", batch.Rows, batch.Source, batch.Rejected, batch.ID)
	return nil
}

type forecastCmd struct {
	Window
}

func (c *forecastCmd) Run(st *store.Store) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	obs, err := st.GetAllPrices()
	if err != nil {
		return err
	}

	res, err := forecast.Run(obs, opts.Forecast)
	if err != nil {
		return err
	}
	if err := st.InsertForecastRun(store.ForecastRunFromResult(res, time.Now())); err != nil {
		log.Warn().Err(err).Msg("forecast: record run")
	}

	fmt.Printf("target:     %s\n", report.FormatDate(res.TargetDate))
	fmt.Printf("predicted:  %s\n", report.FormatPrice(res.PredictedPrice))
	fmt.Printf("train rows: %s\n", report.FormatCount(res.TrainRows))
	if ev := res.Evaluation; ev != nil {
		fmt.Printf("eval rows:  %s\n", report.FormatCount(ev.Rows))
		fmt.Printf("mse:        %s\n", report.FormatNumber(ev.MSE))
		fmt.Printf("rmse:       %s\n", report.FormatNumber(ev.RMSE))
		fmt.Printf("mae:        %s\n", report.FormatNumber(ev.MAE))
	} else {
		fmt.Printf("mse:        %s\n", report.InsufficientData)
	}
	return nil
}

type exportCmd struct {
	Window
	Out string `help:"Output workbook path." short:"o" default:"brent-report.xlsx"`
}

func (c *exportCmd) Run(st *store.Store) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	obs, err := st.GetAllPrices()
	if err != nil {
		return err
	}
	rep, err := report.Build(obs, opts)
	if err != nil {
		return err
	}
	for _, n := range rep.Notices {
		log.Warn().Str("section", n.Section).Msg(n.Message)
	}
	if err := rep.SaveXLSX(c.Out); err != nil {
		return err
	}
	log.Info().Str("path", c.Out).Msg("export: wrote workbook")
	return nil
}

func setupLogging(g Globals) {
	level, err := zerolog.ParseLevel(g.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if g.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func openStore(path string) (*store.Store, func(), error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("brentwatch"),
		kong.Description("Brent crude price report and forecast."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	setupLogging(c.Globals)

	st, closeDB, err := openStore(c.DB)
	if err != nil {
		log.Fatal().Err(err).Str("db", c.DB).Msg("startup failed")
	}
	defer closeDB()

	if err := ctx.Run(st); err != nil {
		log.Error().Err(err).Str("command", ctx.Command()).Msg("command failed")
		closeDB()
		os.Exit(1)
	}
}
