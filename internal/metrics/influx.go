package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"spe/internal/config"
	"spe/internal/logging"
	"spe/internal/service"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 * time.Second

	measurementSave      = "document_save"
	measurementReconcile = "reconcile"
)

// pointWriter is the slice of api.WriteAPI the sink needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Influx implements service.Metrics.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
	log    *logging.Logger
	now    func() time.Time
}

var _ service.Metrics = (*Influx)(nil)

// Connect creates the client, pings the server and starts the write API.
func Connect(cfg config.InfluxDBConfig, log *logging.Logger) (*Influx, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = logging.Discard()
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(uint(defaultFlushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn("influxdb write failed", "error", err)
		}
	}()

	m := newInflux(writeAPI, log)
	m.client = client
	return m, nil
}

func newInflux(w pointWriter, log *logging.Logger) *Influx {
	if log == nil {
		log = logging.Discard()
	}
	return &Influx{writer: w, log: log, now: time.Now}
}

// RecordSave writes one document_save point.
func (m *Influx) RecordSave(_ context.Context, documentID string, panels int, took time.Duration, err error) {
	m.writer.WritePoint(write.NewPoint(
		measurementSave,
		map[string]string{
			"document_id": documentID,
			"status":      status(err),
		},
		map[string]interface{}{
			"duration_ms": durationMS(took),
			"panels":      panels,
		},
		m.now(),
	))
}

// RecordReconcile writes one reconcile point.
func (m *Influx) RecordReconcile(_ context.Context, report service.Report, took time.Duration, err error) {
	m.writer.WritePoint(write.NewPoint(
		measurementReconcile,
		map[string]string{"status": status(err)},
		map[string]interface{}{
			"duration_ms": durationMS(took),
			"adopted":     len(report.Adopted),
			"preloaded":   len(report.Preloaded),
			"pushed":      len(report.Pushed),
			"failed":      len(report.Failed),
		},
		m.now(),
	))
}

// Close flushes pending points and closes the client.
func (m *Influx) Close() error {
	m.writer.Flush()
	if m.client != nil {
		m.client.Close()
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
