// Команда sidecarctl — консоль администрирования сайдкаров.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/docopt/docopt-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-sync/bus/remote"
	"github.com/x-research-team/dtx-sync/counts"
	"github.com/x-research-team/dtx-sync/internal/config"
	"github.com/x-research-team/dtx-sync/internal/telemetry"
	"github.com/x-research-team/dtx-sync/notify"
	"github.com/x-research-team/dtx-sync/sidecar"
)

const version = "0.1.0"

const usage = `Консоль администрирования сайдкаров.

Адрес API и учетные данные берутся из SIDECAR_API_URL,
SIDECAR_API_USERNAME и SIDECAR_API_PASSWORD.

Usage:
    sidecarctl list [--query=<query>] [--page=<page>] [--per_page=<per_page>] [--filter=<filter>...]
    sidecarctl action <action> <target>...
    sidecarctl count [--watch]
    sidecarctl -h | --help
    sidecarctl --version

Options:
    -h --help              Показать справку.
    --version              Показать версию.
    --query=<query>        Подстрока имени или идентификатора узла.
    --page=<page>          Номер страницы.
    --per_page=<per_page>  Размер страницы.
    --filter=<filter>      Фильтр ключ=значение (active, os, collector).
    --watch                Опрашивать счетчик до прерывания.

Цель действия задается как сайдкар:коллектор[,коллектор].`

// app — общие зависимости подкоманд.
type app struct {
	cfg            config.Client
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	gate           remote.Gate
	notifier       notify.Notifier
	out            io.Writer
	options        []sidecar.Option
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		config.Exitf("%v", err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		config.Exitf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level(cfg.LogLevel)}))

	tp, shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "sidecarctl")
	if err != nil {
		config.Exitf("%v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("не удалось завершить экспорт трассировок", slog.Any("error", err))
		}
	}()

	var httpOpts []remote.HTTPOption
	if cfg.Username != "" {
		httpOpts = append(httpOpts, remote.WithBasicAuth(cfg.Username, cfg.Password))
	}

	a := &app{
		cfg:            cfg,
		logger:         logger,
		tracerProvider: tp,
		gate: remote.NewHTTPGate(cfg.APIURL, httpOpts,
			remote.WithLogger(logger),
			remote.WithTracerProvider(tp),
			remote.WithRetryInterval(cfg.RetryInterval),
		),
		notifier: notify.Multi{
			notify.NewLogNotifier(logger),
			notify.NewWriterNotifier(os.Stdout),
		},
		out: os.Stdout,
		options: []sidecar.Option{
			sidecar.WithLogger(logger),
			sidecar.WithTracerProvider(tp),
			sidecar.WithRetryInterval(cfg.RetryInterval),
		},
	}

	if list, _ := opts.Bool("list"); list {
		err = a.list(ctx, opts)
	} else if action, _ := opts.Bool("action"); action {
		err = a.action(ctx, opts)
	} else if count, _ := opts.Bool("count"); count {
		watch, _ := opts.Bool("--watch")
		err = a.count(ctx, watch)
	}
	if err != nil {
		stop()
		config.Exitf("%v", err)
	}
}

func (a *app) list(ctx context.Context, opts docopt.Opts) error {
	query, _ := opts.String("--query")
	page, err := optionalInt(opts, "--page", sidecar.DefaultPage)
	if err != nil {
		return err
	}
	perPage, err := optionalInt(opts, "--per_page", a.cfg.PageSize)
	if err != nil {
		return err
	}
	rawFilters, _ := opts["--filter"].([]string)
	filters, err := parseFilters(rawFilters)
	if err != nil {
		return err
	}

	admin, err := sidecar.NewAdministrationStore(a.gate, a.notifier, a.options...)
	if err != nil {
		return err
	}
	defer admin.Close(context.WithoutCancel(ctx))

	if _, err := admin.List(ctx, sidecar.ListQuery{
		Query:    query,
		Page:     page,
		PageSize: perPage,
		Filters:  filters,
	}).Await(ctx); err != nil {
		return err
	}
	return printSnapshot(a.out, admin.State())
}

func (a *app) action(ctx context.Context, opts docopt.Opts) error {
	verb, _ := opts.String("<action>")
	rawTargets, _ := opts["<target>"].([]string)
	targets, err := parseTargets(rawTargets)
	if err != nil {
		return err
	}

	admin, err := sidecar.NewAdministrationStore(a.gate, a.notifier, a.options...)
	if err != nil {
		return err
	}
	defer admin.Close(context.WithoutCancel(ctx))

	// Итог действия печатает notifier.
	_, err = admin.SetAction(ctx, verb, targets).Await(ctx)
	return err
}

func (a *app) count(ctx context.Context, watch bool) error {
	st, err := counts.NewMessageCountsStore(a.gate, a.notifier,
		counts.WithLogger(a.logger),
		counts.WithTracerProvider(a.tracerProvider),
	)
	if err != nil {
		return err
	}
	defer st.Close(context.WithoutCancel(ctx))

	if !watch {
		total, err := st.Initial().Await(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, total)
		return err
	}

	st.Subscribe(func(_ context.Context, s counts.Snapshot) error {
		_, err := fmt.Fprintf(a.out, "%s\t%d\n", time.Now().Format(time.TimeOnly), s.Events)
		return err
	})
	poller := st.StartPolling(a.cfg.PollInterval)
	defer poller.Stop()

	<-ctx.Done()
	return nil
}

func optionalInt(opts docopt.Opts, key string, fallback int) (int, error) {
	if opts[key] == nil {
		return fallback, nil
	}
	v, err := opts.Int(key)
	if err != nil {
		return 0, fmt.Errorf("некорректное значение %s: %w", key, err)
	}
	return v, nil
}

func printSnapshot(out io.Writer, s sidecar.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE ID\tNAME\tACTIVE\tOS\tVERSION\tCOLLECTORS")
	for _, sc := range s.Sidecars {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			sc.NodeID, sc.NodeName, sc.Active, sc.OperatingSystem, sc.SidecarVersion, strings.Join(sc.Collectors, ","))
	}
	p := s.Pagination
	fmt.Fprintf(w, "\nстраница %d, показано %d из %d (по %d на странице)\n", p.Page, p.Count, p.Total, p.PageSize)
	return w.Flush()
}
