package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signalhub/internal/api"
	"github.com/wonny/signalhub/internal/api/handlers"
	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/lifecycle"
	"github.com/wonny/signalhub/internal/metrics"
	"github.com/wonny/signalhub/internal/pipeline"
	"github.com/wonny/signalhub/internal/realtime/feed"
	"github.com/wonny/signalhub/internal/reputation"
	"github.com/wonny/signalhub/internal/scheduler"
	"github.com/wonny/signalhub/internal/scheduler/jobs"
	"github.com/wonny/signalhub/internal/store"
	"github.com/wonny/signalhub/pkg/config"
	"github.com/wonny/signalhub/pkg/database"
	"github.com/wonny/signalhub/pkg/kafka"
	"github.com/wonny/signalhub/pkg/logger"
	"github.com/wonny/signalhub/pkg/redis"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "전체 서비스 시작",
	Long: `시그널 파이프라인 전체를 시작합니다.

이 명령어는:
- Kafka 입력 토픽(또는 --stdin JSONL)에서 메시지 수신
- 추출 → 검증 → 점수 → 중복 묶음 → 가격 추적 → 평판 집계
- PostgreSQL 저장 / Kafka 이벤트 발행 (설정된 경우)
- 유지보수 스케줄러와 운영 HTTP 서버 실행

Endpoints:
  GET  /healthz               - Health check
  GET  /metrics               - Prometheus metrics
  GET  /v1/feeds              - 시세 제공자/자산별 추적 상태
  GET  /v1/reputation         - 소스 평판 랭킹
  GET  /v1/stats              - 파이프라인 통계
  GET  /v1/jobs               - 스케줄러 잡 통계

Example:
  go run ./cmd/signalhub run
  cat msgs.jsonl | go run ./cmd/signalhub run --stdin`,
	RunE: runService,
}

var (
	runPort  string
	runStdin bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPort, "port", "", "ops server port (default $PORT)")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "read RawMessage JSONL from stdin instead of Kafka")
}

func runService(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runPort != "" {
		cfg.Port = runPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	pcfg, err := loadPipelineConfig(cfg.PipelineConfigPath)
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	// 3. Storage: PostgreSQL 이 primary (전이 영속화 실패 시 적용 중단), 이벤트 발행은 보조
	var (
		primary   store.Sink
		secondary []store.Named
		pg        *store.Postgres
	)
	var db *database.DB
	if cfg.Database.Enabled() {
		db, err = database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pg = store.NewPostgres(db)
		primary = pg
		log.Info("Connected to database")
	}

	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(
			kafka.WithBrokers(cfg.Kafka.Brokers),
			kafka.WithTopic(cfg.Kafka.EventsTopic),
		)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer producer.Close()
		events := store.NewEvents(producer)
		if primary == nil {
			primary = events
		} else {
			secondary = append(secondary, store.Named{Name: "events", Sink: events})
		}
	}
	if primary == nil {
		log.Warn("No persistence configured, keeping results in memory")
		primary = store.NewMemory()
	}
	sinks := store.NewMulti(primary, rec, log.Component("store"), secondary...)

	// 4. Price feeds + lifecycle tracker
	feeds, err := feed.NewManager(cfg, pcfg.Assets, rdb, log.Component("feed"))
	if err != nil {
		return fmt.Errorf("create feed manager: %w", err)
	}
	tracker := lifecycle.New(feeds.Feed(), sinks, pcfg.Lifecycle, lifecycle.Options{
		PollInterval: cfg.Feed.PollInterval,
		FetchTimeout: cfg.Feed.Timeout,
	}, rec, log.Component("lifecycle"))

	// 5. Pipeline
	rep := reputation.New(pcfg.Reputation, log.Component("reputation"))
	if pg != nil {
		if err := restoreReputation(ctx, pg, rep, pcfg.Reputation.HistoryLimit); err != nil {
			return err
		}
	}
	p, err := pipeline.New(pipeline.Deps{
		Config:     pcfg,
		Tracker:    tracker,
		Reputation: rep,
		Sink:       sinks,
		Seen:       redis.NewSeenSet(rdb, "signalhub", redis.TTLDaily),
		Metrics:    rec,
		Log:        log.Component("pipeline"),
	})
	if err != nil {
		return err
	}

	// 6. Scheduler
	sched := scheduler.New(log)
	for _, job := range []scheduler.Job{
		jobs.NewWindowPruneJob(p, log),
		jobs.NewSeenCompactionJob(p, redis.TTLDaily, log),
		jobs.NewReputationReportJob(rep, redis.NewCache(rdb, "signalhub"), log),
		jobs.NewCacheCleanupJob(feeds, log),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
	}

	// 7. Ops server
	var health handlers.HealthChecker
	if db != nil {
		health = db
	}
	var cache handlers.Pinger
	if rdb.Enabled() {
		cache = rdb
	}
	var metricsHandler http.Handler
	if rec != nil {
		metricsHandler = rec.Handler()
	}
	router := api.NewRouter(
		handlers.NewOpsHandler(health, cache, feeds, p, sched, log),
		handlers.NewReputationHandler(rep, log),
		metricsHandler,
		log,
	)
	server := api.New(cfg, log, router)

	// 8. Start everything
	feeds.Start(ctx)
	p.Start(ctx)
	sched.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	var ingest sync.WaitGroup
	ingest.Add(1)
	go func() {
		defer ingest.Done()
		var err error
		if runStdin {
			err = ingestReader(ctx, p, os.Stdin, cfg.IngestWorkers, log)
		} else {
			err = ingestKafka(ctx, p, cfg, log)
		}
		if err != nil {
			errCh <- err
		}
	}()

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"providers":   cfg.Feed.Providers,
		"config_hash": p.ConfigHash(),
		"postgres":    db != nil,
		"redis":       rdb.Enabled(),
		"kafka":       cfg.Kafka.Enabled,
	}).Info("signalhub started")

	// Wait for interrupt signal or a fatal component error
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.WithError(runErr).Error("Component failed, shutting down")
		stop()
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Ops server shutdown failed")
	}
	sched.Stop()
	ingest.Wait()
	p.Stop()
	feeds.Stop()

	log.Info("signalhub stopped")
	return runErr
}

// ingestKafka 입력 토픽 consumer. Kafka 비활성 시 ctx 종료까지 대기
// 모든 후보가 저장 실패한 메시지는 에러로 돌려 재시도/DLQ 로 보냄
func ingestKafka(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Kafka.Enabled {
		log.Warn("Kafka disabled and --stdin not set, no message input")
		<-ctx.Done()
		return nil
	}

	handler := func(ctx context.Context, key, value []byte) error {
		var msg contracts.RawMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			log.WithError(err).WithField("key", string(key)).Warn("Undecodable message skipped")
			return nil
		}
		res := p.Ingest(ctx, msg)
		if res.Status == pipeline.StatusFailed {
			return fmt.Errorf("ingest %s: %s", res.Key, res.Detail)
		}
		return nil
	}

	consumer, err := kafka.NewConsumer(log.Component("kafka"), handler,
		kafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		kafka.WithConsumerTopic(cfg.Kafka.RawTopic),
		kafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		kafka.WithConsumerWorkers(cfg.IngestWorkers),
		kafka.WithConsumerDLQ(cfg.Kafka.RawTopic+".dlq"),
	)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	return nil
}

// ingestReader JSONL 을 읽어 워커 풀로 수집 (입력 종료 후에도 추적은 계속)
func ingestReader(ctx context.Context, p *pipeline.Pipeline, r io.Reader, workers int, log *logger.Logger) error {
	msgs := make(chan contracts.RawMessage)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, msgs, workers)
		close(done)
	}()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var msg contracts.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			log.WithError(err).WithField("line", line).Warn("Undecodable message skipped")
			continue
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(msgs)
	<-done

	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	log.WithField("lines", line).Info("Input closed, tracking continues until shutdown")
	return nil
}

// restoreReputation 저장된 평판과 최근 결과로 집계기를 다시 채움
func restoreReputation(ctx context.Context, pg *store.Postgres, rep *reputation.Aggregator, historyLimit int) error {
	reps, err := pg.LoadReputation(ctx)
	if err != nil {
		return fmt.Errorf("load reputation: %w", err)
	}
	outcomes, err := pg.LoadOutcomes(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	rep.Restore(reps, outcomes)
	return nil
}
