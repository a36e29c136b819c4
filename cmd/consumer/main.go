package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/config"
	"github.com/example/van-transfers/internal/dispatch"
	"github.com/example/van-transfers/internal/ingest"
	"github.com/example/van-transfers/internal/logging"
	"github.com/example/van-transfers/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_consumer_messages_consumed_total",
		Help: "Total push messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	pushDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_consumer_delivered_total",
		Help: "Total pushes accepted by the push endpoint",
	})
	pushFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_consumer_failed_total",
		Help: "Total pushes dropped after exhausting retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, pushDelivered, pushFailed)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	log := logging.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	if err != nil {
		log.Errorw("invalid configuration", "error", err)
		os.Exit(1)
	}

	var sender dispatch.PushSender
	if cfg.PushProvider == "fcm" {
		sender = dispatch.NewFCMDispatcher(cfg.PushEndpoint, cfg.PushToken)
	} else {
		sender = dispatch.NewPushDispatcher(cfg.PushEndpoint, cfg.PushToken)
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		log.Infow("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Warnw("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroupID, MinBytes: 1, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	log.Infow("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroupID)
	consume(ctx, r, sender, cfg, log)
}

// MessageReader is the part of *kafka.Reader the loop uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func consume(ctx context.Context, r MessageReader, sender dispatch.PushSender, cfg config.ConsumerConfig, log *zap.SugaredLogger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Infow("shutting down consumer")
				return
			}
			log.Warnw("kafka read error", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		// reset backoff on success
		backoff = time.Second
		msgsConsumed.Inc()

		msg, err := ingest.DecodePush(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			log.Warnw("invalid message", "offset", m.Offset, "error", err)
			continue
		}
		if err := deliverWithRetry(ctx, sender, msg, cfg.MaxAttempts, cfg.RetryBackoff); err != nil {
			pushFailed.Inc()
			log.Warnw("push delivery failed", "notification_id", msg.NotificationID, "profile_id", msg.ProfileID, "error", err)
			continue
		}
		pushDelivered.Inc()
	}
}

// deliverWithRetry sends msg, doubling the delay after each failed attempt.
func deliverWithRetry(ctx context.Context, sender dispatch.PushSender, msg models.PushMessage, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = sender.Send(ctx, msg); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
