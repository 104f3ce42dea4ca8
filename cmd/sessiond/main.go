package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"im-session/contract"
	"im-session/domain"
	"im-session/domain/event"
	"im-session/managers"
	"im-session/protocol"
	"im-session/secret"
	"im-session/session"
	"im-session/storage"
	"im-session/transcript"
	"im-session/transport"
)

const appName = "sessiond"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and centralizes error reporting, so
// every defer (database close, contact flush) executes before the
// process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := setupLogger(config.LogLevel, config.LogFormat)

	dataDir := config.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = storage.DefaultDataDir(appName)
		if err != nil {
			return fmt.Errorf("data dir resolution failed: %w", err)
		}
	}

	// 2. Transcript database (BadgerDB)
	badgerPath := config.BadgerFilepath
	if badgerPath == "" {
		badgerPath = filepath.Join(dataDir, "transcript")
	}
	db, err := badger.Open(badger.DefaultOptions(badgerPath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Secret store
	var secrets contract.SecretStore
	if config.SecretPassphrase != "" {
		secretPath := config.SecretFile
		if secretPath == "" {
			secretPath = filepath.Join(dataDir, "secrets.bin")
		}
		secrets, err = secret.OpenFile(secretPath, config.SecretPassphrase)
		if err != nil {
			return fmt.Errorf("secret store opening failed: %w", err)
		}
	} else {
		log.Warn("No secret passphrase configured, passwords stay in memory only")
		secrets = secret.NewMemory()
	}

	// 4. Managers & session
	emitter := event.NewEmitter()
	accounts := managers.NewAccountManager(log, filepath.Join(dataDir, storage.AccountsFile), secrets, emitter)
	contacts := managers.NewContactManager(log, filepath.Join(dataDir, storage.ContactsFile), accounts, emitter)
	chatrooms := managers.NewChatroomManager(log, filepath.Join(dataDir, storage.ChatroomsFile), accounts, contacts, emitter)
	defer contacts.Flush()

	factory := func(account *domain.Account) protocol.Protocol {
		return protocol.NewClient(log, account, transport.Factory, contacts, func(a *domain.Account) string {
			pw, _ := secrets.Password(a.ID)
			return pw
		})
	}
	sess := session.NewSession(log, accounts, contacts, chatrooms, factory, emitter)

	// 5. Transcript sink
	store := transcript.NewStore(db, log, config.LimitMessages)
	sink := transcript.NewSink(store, log)
	emitter.SubscribeFunc(event.NewMessageType, sink.Consume)
	emitter.SubscribeFunc(event.MessageSentType, sink.Consume)

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Session layer started", "accounts", accounts.Len(), "dataDir", dataDir)
	if config.ConnectOnStart {
		sess.Connect(ctx, nil, true)
	}

	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	sess.Disconnect(nil)
	log.Info("Program stopped cleanly")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLevel(level)

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
