package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/gateway"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/monitor"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/store"
	"github.com/stemsi/exstem-proctor/internal/violation"
)

const redisDialTimeout = 5 * time.Second

func main() {
	quizID := flag.String("quiz", "", "quiz ID to start or resume")
	flag.Parse()
	if *quizID == "" && flag.NArg() > 0 {
		*quizID = flag.Arg(0)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// The exam screen owns stdout.
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if *quizID == "" {
		log.Fatal().Msg("quiz ID is required: proctor -quiz <id>")
	}
	if cfg.AuthToken == "" {
		log.Fatal().Msg("AUTH_TOKEN is not set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		dialCtx, dialCancel := context.WithTimeout(ctx, redisDialTimeout)
		var err error
		rdb, err = database.NewRedisClient(dialCtx, cfg.RedisURL, log)
		dialCancel()
		if err != nil {
			if cfg.StoreDriver == "redis" {
				log.Fatal().Err(err).Msg("Redis store selected but Redis is unreachable")
			}
			log.Warn().Err(err).Msg("Redis unavailable, live monitor reporting disabled")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	// ─── Initialize Gateway and Store ──────────────────────────────────
	gw, closeGateway, err := newGateway(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize gateway")
	}
	defer closeGateway()

	st, closeStore, err := newStore(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer closeStore()

	opts := []session.Option{session.WithLogger(log)}
	if rdb != nil {
		opts = append(opts, session.WithReporter(monitor.NewRedisReporter(rdb, log)))
	}

	submitRetry := gateway.DefaultRetryPolicy
	submitRetry.MaxInterval = cfg.SubmitRetryMaxInterval
	startRetry := gateway.DefaultRetryPolicy
	startRetry.MaxTries = uint(max(cfg.StartRetryAttempts, 1))

	ctrl := session.New(gw, st, session.Config{
		QuizID:            *quizID,
		ViolationDebounce: cfg.ViolationDebounce,
		StrikeLimit:       cfg.StrikeLimit,
		StartRetry:        startRetry,
		SubmitRetry:       submitRetry,
	}, opts...)
	defer ctrl.Close()

	// ─── Start or Resume ───────────────────────────────────────────────
	fmt.Println("Memulai ujian...")
	if err := ctrl.Begin(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start attempt")
		os.Exit(1)
	}

	// ─── Run Terminal ──────────────────────────────────────────────────
	lines := make(chan string)
	src := &violation.TerminalSource{
		In:    os.Stdin,
		Out:   os.Stdout,
		Lines: lines,
		Log:   log,
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- ctrl.Watch(ctx, src) }()

	scr := newScreen(os.Stdout)
	scr.render(ctrl.View())

	for {
		select {
		case <-ctrl.Updates():
			scr.render(ctrl.View())
		case line := <-lines:
			if msg := runCommand(ctrl, line); msg != "" {
				scr.notice(msg)
			}
			scr.render(ctrl.View())
		case <-ctrl.Done():
			// Let the final state render before the terminal is restored.
			scr.render(ctrl.View())
			cancel()
			<-watchErr
			return
		case err := <-watchErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Terminal watcher stopped")
			}
			// Ctrl-C leaves the attempt resumable from the local store.
			ctrl.Close()
			scr.render(ctrl.View())
			return
		}
	}
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Str("addr", addr).Msg("Metrics listener stopped")
	}
}

func newGateway(cfg *config.Config, log zerolog.Logger) (gateway.Gateway, func(), error) {
	creds := gateway.StaticToken(cfg.AuthToken)
	switch cfg.GatewayKind {
	case "http":
		return gateway.NewHTTP(cfg.ServerURL, creds, gateway.WithHTTPLogger(log)), func() {}, nil
	case "ws":
		gw := gateway.NewWS(cfg.ServerURL, creds,
			gateway.WithWSLogger(log),
			gateway.WithWSTimeout(cfg.RequestTimeout),
		)
		return gw, func() { _ = gw.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown GATEWAY %q (want http or ws)", cfg.GatewayKind)
	}
}

func newStore(cfg *config.Config, rdb *redis.Client) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("STORE_DRIVER=redis requires REDIS_URL")
		}
		return store.NewRedis(rdb, store.DefaultRedisTTL), func() {}, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q (want sqlite, redis or memory)", cfg.StoreDriver)
	}
}

// runCommand applies one typed line and returns a message for the student.
//
//	<option or text>  answer the current question
//	:n <num>          go to question num
//	:clear            clear the current answer
//	:ok               acknowledge the warning
//	:submit           submit the attempt
func runCommand(ctrl *session.Controller, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	v := ctrl.View()
	fields := strings.Fields(line)
	switch fields[0] {
	case ":ok":
		if err := ctrl.AcknowledgeWarning(); err != nil {
			return commandError(err)
		}
		return ""
	case ":submit":
		if err := ctrl.Submit(); err != nil {
			return commandError(err)
		}
		return "Mengirim jawaban..."
	case ":n":
		if len(fields) != 2 {
			return "Gunakan :n <nomor soal>"
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return "Nomor soal tidak valid"
		}
		if err := ctrl.GoTo(n - 1); err != nil {
			return commandError(err)
		}
		return ""
	case ":clear":
		line = ""
	}

	if v.CurrentQuestionIndex >= len(v.Questions) {
		return "Belum ada soal"
	}
	q := v.Questions[v.CurrentQuestionIndex]
	if err := ctrl.Answer(q.ID, line); err != nil {
		return commandError(err)
	}
	if line == "" {
		return "Jawaban dihapus"
	}
	return ""
}

func commandError(err error) string {
	switch {
	case errors.Is(err, session.ErrNotActive):
		return "Ujian tidak sedang berlangsung"
	case errors.Is(err, session.ErrNoWarning):
		return "Tidak ada peringatan"
	case errors.Is(err, session.ErrInvalidOption):
		return "Pilihan tidak tersedia untuk soal ini"
	case errors.Is(err, session.ErrInvalidIndex):
		return "Nomor soal di luar jangkauan"
	default:
		return err.Error()
	}
}
