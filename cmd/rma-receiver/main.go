package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/rma-receiver/internal/folder"
	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/ledger"
	"github.com/zombor/rma-receiver/internal/ocr"
	"github.com/zombor/rma-receiver/internal/operator"
	"github.com/zombor/rma-receiver/internal/session"
	"github.com/zombor/rma-receiver/internal/storage"
	"github.com/zombor/rma-receiver/internal/terminal"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	defaults := terminal.DefaultCommands()

	fs := ff.NewFlagSet("rma-receiver")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "rma-receiver.db", "History database file path")
		receivedRoot  = fs.StringLong("received-root", "./received", "Root folder for received item images")
		damagedRoot   = fs.StringLong("damaged-root", "./damaged", "Root folder for damaged item images")
		ledgerRoot    = fs.StringLong("ledger-root", "./ledger", "Root folder for the daily receiving ledgers")
		driverType    = fs.StringLong("driver", "exec", "Terminal driver: 'exec' or 'replay'")
		replayDir     = fs.StringLong("replay-dir", "", "Directory of recorded screen captures for the replay driver")
		macrosPath    = fs.StringLong("macros", "", "YAML file overriding the navigation macros")
		focusCmd      = fs.StringLong("focus-cmd", strings.Join(defaults.Focus, " "), "Command that focuses the terminal window")
		keyCmd        = fs.StringLong("key-cmd", strings.Join(defaults.Key, " "), "Command that presses a key (key name appended)")
		typeCmd       = fs.StringLong("type-cmd", strings.Join(defaults.Type, " "), "Command that types text (text appended)")
		clipboardCmd  = fs.StringLong("clipboard-cmd", strings.Join(defaults.Clipboard, " "), "Command that prints the clipboard")
		captureMode   = fs.StringLong("capture", "clipboard", "Screen capture: 'clipboard' or 'screenshot'")
		screenshotCmd = fs.StringLong("screenshot-cmd", "import -window root png:-", "Command that prints a screenshot of the terminal")
		ocrType       = fs.StringLong("ocr", "gemini", "Screenshot transcriber: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "qwen2-vl", "Ollama model name")
		maxPages      = fs.IntLong("max-pages", session.DefaultMaxPages, "Maximum search result pages to read")
		keyDelay      = fs.DurationLong("key-delay", 0, "Pause after every key or text step")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RMA_RECEIVER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Initialize database
	slog.Info("Initializing history database...", "path", *dbPath)
	db, err := history.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	macros, err := terminal.LoadMacros(*macrosPath)
	if err != nil {
		slog.Error("Failed to load macros", "error", err)
		os.Exit(1)
	}

	// Initialize terminal driver based on type
	var driver terminal.Driver
	switch *driverType {
	case "exec":
		execDriver := terminal.NewExecDriver(terminal.Commands{
			Focus:      strings.Fields(*focusCmd),
			Key:        strings.Fields(*keyCmd),
			Type:       strings.Fields(*typeCmd),
			Clipboard:  strings.Fields(*clipboardCmd),
			Screenshot: strings.Fields(*screenshotCmd),
		}, *keyDelay)

		switch *captureMode {
		case "clipboard":
		case "screenshot":
			transcriber, err := newTranscriber(*ocrType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
			if err != nil {
				slog.Error("Failed to initialize transcriber", "error", err)
				os.Exit(1)
			}
			defer transcriber.Close()
			execDriver.WithTranscriber(transcriber)
		default:
			slog.Error("Invalid capture mode", "capture", *captureMode, "valid", "clipboard or screenshot")
			os.Exit(1)
		}
		slog.Info("Using exec terminal driver", "capture", *captureMode)
		driver = execDriver
	case "replay":
		if *replayDir == "" {
			slog.Error("The replay driver needs --replay-dir")
			os.Exit(1)
		}
		driver, err = terminal.LoadReplayDriver(*replayDir)
		if err != nil {
			slog.Error("Failed to load screen captures", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid driver type", "type", *driverType, "valid", "exec or replay")
		os.Exit(1)
	}

	// Initialize filing
	store := storage.NewLocalStorage()
	resolver := folder.NewResolver(store, folder.Trees{
		Received: *receivedRoot,
		Damaged:  *damagedRoot,
	})
	ledgerWriter := ledger.NewWriter(store, *ledgerRoot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := session.NewController(session.Deps{
		Driver:   driver,
		Macros:   macros,
		Folders:  resolver,
		Ledger:   ledgerWriter,
		History:  db,
		MaxPages: *maxPages,
	})
	go controller.Run(ctx)

	// Initialize server
	basicAuth := operator.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := operator.NewServer(controller, db, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Serve(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

func newTranscriber(kind, geminiKey, geminiModel, ollamaURL, ollamaModel string) (ocr.Transcriber, error) {
	switch kind {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini transcriber...", "model", geminiModel)
		return ocr.NewGemini(apiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama transcriber...", "url", ollamaURL, "model", ollamaModel)
		return ocr.NewOllama(ollamaURL, ollamaModel)
	default:
		return nil, fmt.Errorf("invalid transcriber %q: want gemini or ollama", kind)
	}
}
