package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/fatih/color"
	"github.com/forPelevin/gomoji"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mfarraj/tg-guardian/app/bot"
	"github.com/mfarraj/tg-guardian/app/events"
	"github.com/mfarraj/tg-guardian/app/storage"
	"github.com/mfarraj/tg-guardian/lib/guard"
)

type options struct {
	Telegram struct {
		Token string `long:"token" env:"TOKEN" description:"telegram bot token" required:"true"`
		Owner int64  `long:"owner" env:"OWNER" description:"bot owner user id" required:"true"`
	} `group:"telegram" namespace:"telegram" env-namespace:"TELEGRAM"`

	DBFile      string `long:"db" env:"DB" default:"data/guardian.db" description:"sqlite database file"`
	HistorySize int    `long:"history-size" env:"HISTORY_SIZE" default:"3000" description:"max messages kept for bulk clearing"`

	Files struct {
		Labels        string        `long:"labels" env:"LABELS" default:"data/labels.json" description:"labeled examples file"`
		Model         string        `long:"model" env:"MODEL" default:"data/model.gob" description:"trained model artifact"`
		WatchInterval time.Duration `long:"watch-interval" env:"WATCH_INTERVAL" default:"5s" description:"debounce for labels file watcher"`
	} `group:"files" namespace:"files" env-namespace:"FILES"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated audit log of removed messages"`
		FileName   string `long:"file" env:"FILE" default:"tg-guardian.log" description:"location of audit log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	NoAutoResponses bool `long:"no-auto-responses" env:"NO_AUTO_RESPONSES" description:"disable canned replies and reactions"`
	Dbg             bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	TGDbg           bool `long:"tg-dbg" env:"TG_DEBUG" description:"telegram debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("tg-guardian %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Telegram.Token)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	tbAPI, err := tbapi.NewBotAPI(opts.Telegram.Token)
	if err != nil {
		return fmt.Errorf("can't make telegram bot, %w", err)
	}
	tbAPI.Debug = opts.TGDbg

	db, err := storage.NewSqlite(opts.DBFile)
	if err != nil {
		return fmt.Errorf("can't open database %s, %w", opts.DBFile, err)
	}
	defer db.Close()

	settings, err := storage.NewSettings(db)
	if err != nil {
		return fmt.Errorf("can't make settings store, %w", err)
	}
	perms, err := storage.NewAdminPerms(db)
	if err != nil {
		return fmt.Errorf("can't make admin perms store, %w", err)
	}
	blocked, err := storage.NewBlockedSets(db)
	if err != nil {
		return fmt.Errorf("can't make blocked sets store, %w", err)
	}
	censored, err := storage.NewCensoredWords(db)
	if err != nil {
		return fmt.Errorf("can't make censored words store, %w", err)
	}
	promoted, err := storage.NewPromotedAdmins(db)
	if err != nil {
		return fmt.Errorf("can't make promoted admins store, %w", err)
	}
	users, err := storage.NewKnownUsers(db)
	if err != nil {
		return fmt.Errorf("can't make known users store, %w", err)
	}

	samples, classifier, err := makeClassifier(ctx, opts)
	if err != nil {
		return err
	}

	loggerWr, err := makeAuditLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make audit log writer, %w", err)
	}
	defer loggerWr.Close()

	status := events.NewStatusFetcher(tbAPI)
	history := guard.NewHistory(opts.HistorySize)

	var responder *bot.Responder
	if !opts.NoAutoResponses {
		responder = bot.NewResponder()
	}

	moderator := bot.NewModerator(bot.ModeratorParams{
		OwnerID:    opts.Telegram.Owner,
		Tracker:    guard.NewSpamTracker(guard.SpamWindow),
		Classifier: classifier,
		Settings:   settings,
		Perms:      perms,
		Blocked:    blocked,
		Censored:   censored,
		Status:     status,
		Responder:  responder,
	})

	commands := events.NewCommands(events.CommandsParams{
		TbAPI:      tbAPI,
		OwnerID:    opts.Telegram.Owner,
		Status:     status,
		Settings:   settings,
		Perms:      perms,
		Blocked:    blocked,
		Censored:   censored,
		Promoted:   promoted,
		Users:      users,
		Samples:    samples,
		Classifier: classifier,
		History:    history,
	})

	listener := events.TelegramListener{
		TbAPI:       tbAPI,
		Bot:         moderator,
		AuditLogger: makeAuditLogger(loggerWr),
		Commands:    commands,
		History:     history,
		Users:       users,
	}
	log.Printf("[DEBUG] telegram listener config: {owner: %d, history: %d, responses: %v, audit: %v}",
		opts.Telegram.Owner, opts.HistorySize, !opts.NoAutoResponses, opts.Logger.Enabled)

	if err := listener.Do(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("telegram listener failed, %w", err)
	}
	return nil
}

// makeClassifier loads the persisted model if it matches the current labels,
// otherwise retrains from scratch. Also starts the labels file watcher so
// external edits of the file retrain on the fly.
func makeClassifier(ctx context.Context, opts options) (*guard.SampleStore, *guard.Classifier, error) {
	samples, err := guard.NewSampleStore(opts.Files.Labels, opts.Files.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("can't make sample store, %w", err)
	}

	classifier := guard.NewClassifier()
	model, err := samples.LoadModel()
	if err != nil {
		log.Printf("[WARN] can't load persisted model, retraining: %v", err)
	}
	if model != nil {
		classifier.SetModel(model)
		log.Printf("[INFO] classifier model loaded from %s", opts.Files.Model)
	} else {
		classifier.Train(samples.Labels())
	}

	retrain := func() {
		classifier.Train(samples.Labels())
		if !classifier.Trained() {
			return
		}
		if serr := samples.SaveModel(classifier.Model()); serr != nil {
			log.Printf("[WARN] can't save model, %v", serr)
		}
	}

	go func() {
		if werr := samples.Watch(ctx, opts.Files.WatchInterval, retrain); werr != nil {
			log.Printf("[WARN] labels watcher stopped, %v", werr)
		}
	}()

	return samples, classifier, nil
}

// makeAuditLogger creates the logger keeping records of removed messages,
// it writes json lines to the provided writer
func makeAuditLogger(wr io.Writer) events.AuditLogger {
	return events.AuditLoggerFunc(func(msg *bot.Message, response *bot.Response) {
		text := gomoji.RemoveEmojis(msg.Text)
		text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
		log.Printf("[INFO] removed message from %v in chat %d: %q", msg.From, msg.ChatID, text)
		m := struct {
			TimeStamp   string `json:"ts"`
			ChatID      int64  `json:"chat_id"`
			DisplayName string `json:"display_name"`
			UserName    string `json:"user_name"`
			UserID      int64  `json:"user_id"`
			Text        string `json:"text"`
			Reason      string `json:"reason"`
		}{
			TimeStamp:   time.Now().In(time.Local).Format(time.RFC3339),
			ChatID:      msg.ChatID,
			DisplayName: msg.From.DisplayName,
			UserName:    msg.From.Username,
			UserID:      msg.From.ID,
			Text:        text,
			Reason:      response.Text,
		}
		line, err := json.Marshal(&m)
		if err != nil {
			log.Printf("[WARN] can't marshal audit record, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write audit record, %v", err)
		}
	})
}

// makeAuditLogWriter creates audit log writer to keep records of removed messages
// it parses options and makes lumberjack logger with rotation
func makeAuditLogWriter(opts options) (accessLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}

	maxSize /= 1048576

	log.Printf("[INFO] audit logger enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
