package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// TradeRecord is the columnar row shape for archived trades.
type TradeRecord struct {
	Exchange       string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol         string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeID        string  `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price          float64 `parquet:"name=price, type=DOUBLE"`
	Amount         float64 `parquet:"name=amount, type=DOUBLE"`
	Side           string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64   `parquet:"name=timestamp, type=INT64"`
	LocalTimestamp int64   `parquet:"name=local_timestamp, type=INT64"`
}

// memoryParquetFile adapts a bytes.Buffer to the parquet source interface
// so files are assembled in memory before hitting disk or S3.
type memoryParquetFile struct {
	buffer *bytes.Buffer
}

func newMemoryParquetFile() *memoryParquetFile {
	return &memoryParquetFile{buffer: &bytes.Buffer{}}
}

func (f *memoryParquetFile) Create(string) (source.ParquetFile, error) { return f, nil }
func (f *memoryParquetFile) Open(string) (source.ParquetFile, error)  { return f, nil }
func (f *memoryParquetFile) Seek(int64, int) (int64, error)           { return int64(f.buffer.Len()), nil }
func (f *memoryParquetFile) Read(b []byte) (int, error)               { return f.buffer.Read(b) }
func (f *memoryParquetFile) Write(b []byte) (int, error)              { return f.buffer.Write(b) }
func (f *memoryParquetFile) Close() error                             { return nil }
func (f *memoryParquetFile) Bytes() []byte                            { return f.buffer.Bytes() }

// ParquetWriter archives normalized trades as parquet files, one file per
// exchange and symbol per flush interval, to a local directory or S3.
type ParquetWriter struct {
	config   appconfig.ParquetConfig
	events   <-chan models.Event
	s3Client *s3.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Entry
	buffer   map[string][]TradeRecord
}

func NewParquetWriter(ctx context.Context, cfg appconfig.ParquetConfig, events <-chan models.Event) (*ParquetWriter, error) {
	w := &ParquetWriter{
		config: cfg,
		events: events,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger().WithComponent("parquet_writer"),
		buffer: make(map[string][]TradeRecord),
	}

	if cfg.S3.Enabled {
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.S3.Region),
		}
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		w.s3Client = s3.NewFromConfig(awsCfg)
		w.log.WithFields(logger.Fields{
			"bucket": cfg.S3.Bucket,
			"region": cfg.S3.Region,
		}).Info("parquet writer will upload to S3")
	} else if cfg.Directory == "" {
		return nil, fmt.Errorf("parquet writer needs a directory or S3 target")
	}

	return w, nil
}

func (w *ParquetWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("parquet writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(2)
	go w.consume()
	go w.flushWorker()
	w.log.Info("parquet writer started")
	return nil
}

func (w *ParquetWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.flushAll("shutdown")
	w.log.Info("parquet writer stopped")
}

func (w *ParquetWriter) consume() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			trade, ok := ev.(*models.Trade)
			if !ok {
				continue
			}
			key := trade.Exchange + "|" + trade.Symbol
			rec := TradeRecord{
				Exchange:       trade.Exchange,
				Symbol:         trade.Symbol,
				TradeID:        trade.ID,
				Price:          trade.Price,
				Amount:         trade.Amount,
				Side:           trade.Side,
				Timestamp:      trade.Timestamp.UnixMilli(),
				LocalTimestamp: trade.LocalTimestamp.UnixMilli(),
			}
			w.mu.Lock()
			w.buffer[key] = append(w.buffer[key], rec)
			w.mu.Unlock()
		}
	}
}

func (w *ParquetWriter) flushWorker() {
	defer w.wg.Done()

	interval := w.config.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushAll("interval")
		}
	}
}

func (w *ParquetWriter) flushAll(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]TradeRecord)
	w.mu.Unlock()

	for key, records := range buffers {
		if len(records) == 0 {
			continue
		}
		if err := w.flush(key, records); err != nil {
			w.log.WithError(err).WithFields(logger.Fields{
				"key":    key,
				"reason": reason,
			}).Error("parquet flush failed")
		}
	}
}

func (w *ParquetWriter) flush(key string, records []TradeRecord) error {
	data, err := encodeParquet(records)
	if err != nil {
		return err
	}

	exchange, symbol, _ := strings.Cut(key, "|")
	filename := fmt.Sprintf("%s_%s_trades_%s_%s.parquet",
		exchange, symbol, time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])

	if w.s3Client != nil {
		return w.upload(filename, data)
	}

	path := filepath.Join(w.config.Directory, filename)
	if err := os.MkdirAll(w.config.Directory, 0o755); err != nil {
		return fmt.Errorf("create parquet directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	w.log.WithFields(logger.Fields{
		"file":    path,
		"records": len(records),
	}).Info("parquet file written")
	logger.LogDataFlowEntry(w.log, key, "parquet", len(records), "trade")
	return nil
}

func encodeParquet(records []TradeRecord) ([]byte, error) {
	fw := newMemoryParquetFile()
	pw, err := pqwriter.NewParquetWriter(fw, new(TradeRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (w *ParquetWriter) upload(name string, data []byte) error {
	key := name
	if w.config.S3.Prefix != "" {
		key = strings.TrimSuffix(w.config.S3.Prefix, "/") + "/" + name
	}

	// finish in-flight uploads even during shutdown
	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.config.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.S3.Bucket, err)
	}
	w.log.WithFields(logger.Fields{
		"key":  key,
		"size": len(data),
	}).Info("parquet file uploaded")
	return nil
}
