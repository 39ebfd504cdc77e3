package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	es "github.com/familyorganizer/eventsourcing"
	"github.com/familyorganizer/eventsourcing/family"
	"github.com/familyorganizer/eventsourcing/internal/config"
	"github.com/familyorganizer/eventsourcing/logging"
	esotel "github.com/familyorganizer/eventsourcing/otel"
)

const usage = `usage: familyctl [-config=<path>] [-user=<id>] <command> [<args>]

Configuration flags:

   -config     YAML configuration file. FAMILY_STORE_DRIVER, FAMILY_STORE_DSN,
               FAMILY_LOG_LEVEL and FAMILY_SNAPSHOT_EVERY override the file.
   -user       User id recorded on the events raised by the command.

Family commands
   create          <name> <owner-id> [<family-id>]
   rename          <family-id> <name>
   add-member      <family-id> <user-id> <FamilyAdmin|FamilyMember|Child>
   remove-member   <family-id> <user-id>
   assign-admin    <family-id> <user-id>
   revoke-admin    <family-id> <user-id>

Query commands
   show            <family-id>
   replay          <family-id> [<version>]
   find-owner      <user-id>
   find-member     <user-id>
`

var (
	configFlag = flag.String("config", "", "configuration file")
	userFlag   = flag.String("user", "", "acting user id")
)

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, "missing command\n\n", usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "familyctl: %v\n", err)
		if errors.Is(err, es.ErrBusinessRuleViolation) || errors.Is(err, es.ErrAggregateNotFound) {
			os.Exit(1)
		}
		os.Exit(3)
	}
}

type app struct {
	service *family.Service
	store   es.EventStore
	out     io.Writer
}

func run(ctx context.Context, cmd string, args []string) error {
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	a, err := newApp(ctx, cfg, log, os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	if *userFlag != "" {
		ctx = es.WithUser(ctx, *userFlag)
	}
	return a.exec(ctx, cmd, args)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, out io.Writer) (*app, error) {
	registry := es.NewRegistry()
	family.Register(registry)
	codec := es.NewCodec(registry)

	store, snapshots, err := openStore(ctx, cfg.Store, codec, log)
	if err != nil {
		return nil, err
	}

	directory := family.NewDirectory()
	if err := directory.Rebuild(ctx, store); err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []es.RepositoryOption{
		es.WithLogger(log.With("component", "repository")),
		es.WithEventHandlers(esotel.WithEventTelemetry("family-directory",
			logging.WithLoggingMiddleware(log.With("component", "directory"), directory))),
	}
	if snapshots != nil && cfg.Store.SnapshotEvery > 0 {
		opts = append(opts, es.WithSnapshotStore(snapshots), es.WithSnapshotEvery(cfg.Store.SnapshotEvery))
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}
	entry := logrus.NewEntry(logger).WithField("app", "familyctl")

	var repo es.Repository[*family.Family] = es.NewRepository(store, family.New, opts...)
	repo = logging.WithRepositoryLogging(entry, repo)
	repo = esotel.WithRepositoryTelemetry(repo)

	return &app{
		service: family.NewService(repo, directory,
			family.WithCommandLogger(entry),
			family.WithConflictRetry(family.ExponentialRetry(cfg.Commands.MaxRetries)),
			family.WithShards(cfg.Commands.Shards, cfg.Commands.Buffer),
			family.WithHistory(store),
		),
		store: store,
		out:   out,
	}, nil
}

func (a *app) close() {
	a.service.Close()
	_ = a.store.Close()
}

func (a *app) exec(ctx context.Context, cmd string, args []string) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments, got %d", cmd, n, len(args))
		}
		return nil
	}

	var (
		res es.AppendResult
		err error
	)
	switch cmd {
	case "create":
		if err := need(2); err != nil {
			return err
		}
		c := family.CreateFamily{Name: args[0], OwnerID: args[1]}
		if len(args) > 2 {
			c.FamilyID = args[2]
		}
		res, err = a.service.Create(ctx, c)
	case "rename":
		if err := need(2); err != nil {
			return err
		}
		res, err = a.service.Rename(ctx, family.RenameFamily{FamilyID: args[0], Name: args[1]})
	case "add-member":
		if err := need(3); err != nil {
			return err
		}
		res, err = a.service.AddMember(ctx, family.AddMember{FamilyID: args[0], UserID: args[1], Role: family.Role(args[2])})
	case "remove-member":
		if err := need(2); err != nil {
			return err
		}
		res, err = a.service.RemoveMember(ctx, family.RemoveMember{FamilyID: args[0], UserID: args[1]})
	case "assign-admin":
		if err := need(2); err != nil {
			return err
		}
		res, err = a.service.AssignAdmin(ctx, family.AssignAdmin{FamilyID: args[0], UserID: args[1]})
	case "revoke-admin":
		if err := need(2); err != nil {
			return err
		}
		res, err = a.service.RevokeAdmin(ctx, family.RevokeAdmin{FamilyID: args[0], UserID: args[1]})

	case "show":
		if err := need(1); err != nil {
			return err
		}
		f, err := a.service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return a.printJSON(view(f))
	case "replay":
		if err := need(1); err != nil {
			return err
		}
		var until uint64
		if len(args) > 1 {
			if until, err = strconv.ParseUint(args[1], 10, 64); err != nil {
				return fmt.Errorf("replay: version: %w", err)
			}
		}
		f, err := a.service.Replay(ctx, args[0], until)
		if err != nil {
			return err
		}
		return a.printJSON(view(f))
	case "find-owner", "find-member":
		if err := need(1); err != nil {
			return err
		}
		find := a.service.FindByOwner
		if cmd == "find-member" {
			find = a.service.FindByMember
		}
		families, err := find(ctx, args[0])
		if err != nil {
			return err
		}
		out := make([]familyView, len(families))
		for i, f := range families {
			out[i] = view(f)
		}
		return a.printJSON(out)
	default:
		return fmt.Errorf("unknown command %q, known commands:\n%s", cmd, strings.TrimPrefix(usage, "usage: "))
	}
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

type familyView struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	OwnerID string          `json:"ownerId"`
	Version uint64          `json:"version"`
	Members []family.Member `json:"members"`
	Admins  []string        `json:"admins"`
}

func view(f *family.Family) familyView {
	return familyView{
		ID:      f.AggregateID(),
		Name:    f.Name(),
		OwnerID: f.OwnerID(),
		Version: f.Version(),
		Members: f.Members(),
		Admins:  f.Admins(),
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
