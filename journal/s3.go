package journal

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	appconfig "insiderflow/config"
	"insiderflow/logger"
)

// S3Uploader periodically copies the audit CSV files to an S3 bucket so
// the local disk is not the only home of the trade history. Uploads are
// whole-file puts; the files are small and append-only.
type S3Uploader struct {
	config   appconfig.AuditS3Config
	journal  *CSVJournal
	client   *s3.Client
	limiter  *rate.Limiter
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewS3Uploader configures the AWS SDK and validates credentials.
func NewS3Uploader(cfg appconfig.AuditS3Config, journal *CSVJournal) (*S3Uploader, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	interval := cfg.UploadInterval.Std()
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	uploader := &S3Uploader{
		config:   cfg,
		journal:  journal,
		client:   s3.NewFromConfig(awsCfg),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		interval: interval,
		log:      log,
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket": cfg.Bucket,
		"region": cfg.Region,
	}).Debug("s3 uploader initialized")

	return uploader, nil
}

func (u *S3Uploader) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.running {
		return fmt.Errorf("s3 uploader is already running")
	}

	u.ctx, u.cancel = context.WithCancel(ctx)
	u.running = true

	u.wg.Add(1)
	go u.run()

	u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"interval": u.interval.String(),
	}).Info("S3 uploader started")
	return nil
}

// Stop performs a final upload before shutting down so the bucket copy is
// current as of process exit.
func (u *S3Uploader) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	u.cancel()
	u.mu.Unlock()

	u.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u.uploadAll(ctx)

	u.log.WithComponent("s3_uploader").Info("S3 uploader stopped")
}

func (u *S3Uploader) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.uploadAll(u.ctx)
		}
	}
}

func (u *S3Uploader) uploadAll(ctx context.Context) {
	for _, file := range []string{u.journal.TradesPath(), u.journal.ClosesPath()} {
		if err := u.uploadFile(ctx, file); err != nil {
			u.log.WithComponent("s3_uploader").WithError(err).Warn("Audit upload failed")
		}
	}
}

func (u *S3Uploader) uploadFile(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		// Nothing journaled yet.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	if err := u.limiter.Wait(ctx); err != nil {
		return err
	}

	key := path.Join(u.config.Prefix, path.Base(filePath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"key": key,
	}).Debug("Audit file uploaded")
	return nil
}
