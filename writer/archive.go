package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "energylink/config"
	"energylink/logger"
	"energylink/models"
)

// AuditRecord is the parquet row of an archived audit entry.
type AuditRecord struct {
	ID        string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64  `parquet:"name=timestamp, type=INT64"`
	UserID    string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Action    string `parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Region    string `parquet:"name=region, type=BYTE_ARRAY, convertedtype=UTF8"`
	Details   string `parquet:"name=details, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements source.ParquetFile over a buffer.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return mfw, nil }

// Seek only reports the write position; the parquet writer never rewinds.
func (mfw *memoryFileWriter) Seek(int64, int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// objectPutter is the part of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores accepted regulatory reports as objects and cleared audit
// entries as parquet files.
type S3Archive struct {
	cfg    appconfig.S3Config
	app    appconfig.AppConfig
	client objectPutter
	now    func() time.Time
	log    *logger.Log
}

func NewS3Archive(ctx context.Context, cfg appconfig.S3Config, app appconfig.AppConfig) (*S3Archive, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_archive").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_archive").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 archive initialized")

	return newS3Archive(cfg, app, client), nil
}

func newS3Archive(cfg appconfig.S3Config, app appconfig.AppConfig, client objectPutter) *S3Archive {
	return &S3Archive{cfg: cfg, app: app, client: client, now: time.Now, log: logger.GetLogger()}
}

// reportKey is <prefix>/reports/regulation=<REG>/date=<yyyy-mm-dd>/<filename>.
func (a *S3Archive) reportKey(r models.RegulatoryReport) string {
	return path.Join(a.cfg.Prefix, "reports",
		"regulation="+r.Regulation,
		"date="+r.GeneratedAt.UTC().Format("2006-01-02"),
		r.Filename)
}

func (a *S3Archive) auditKey(at time.Time) string {
	return path.Join(a.cfg.Prefix, "audit",
		"date="+at.UTC().Format("2006-01-02"),
		fmt.Sprintf("audit_%s_%s.parquet", at.UTC().Format("20060102150405"), uuid.NewString()[:8]))
}

func (a *S3Archive) ArchiveReport(ctx context.Context, r models.RegulatoryReport) error {
	contentType := "application/xml"
	if r.Format == models.FormatCSV {
		contentType = "text/csv"
	}
	key := a.reportKey(r)
	return a.put(ctx, key, []byte(r.Content), contentType, map[string]string{
		"report-id":       r.ID,
		"regulation":      r.Regulation,
		"confirmation-id": r.ConfirmationID,
	})
}

func (a *S3Archive) ArchiveAuditEntries(ctx context.Context, entries []models.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data, err := createAuditParquet(entries)
	if err != nil {
		return err
	}
	return a.put(ctx, a.auditKey(a.now()), data, "application/octet-stream", map[string]string{
		"content-type": "parquet",
		"compression":  "snappy",
		"record-count": fmt.Sprint(len(entries)),
	})
}

func (a *S3Archive) put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	log := a.log.WithComponent("s3_archive").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"s3_key":    key,
		"data_size": len(data),
	})

	meta["energylink-version"] = a.app.Version
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(strings.TrimPrefix(key, "/")),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		a.log.WithEnv("S3_BUCKET").WithComponent("s3_archive").WithError(err).
			WithFields(logger.Fields{"bucket": a.cfg.Bucket, "s3_key": key}).
			Error("failed to upload to S3")
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.cfg.Bucket, err)
	}
	log.Info("successfully uploaded to S3")
	return nil
}

func createAuditParquet(entries []models.AuditLogEntry) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(AuditRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			details = []byte("{}")
		}
		record := AuditRecord{
			ID:        e.ID,
			Timestamp: e.Timestamp.UnixMilli(),
			UserID:    e.UserID,
			Action:    e.Action,
			Region:    e.Region,
			Details:   string(details),
		}
		if err := pw.Write(record); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
