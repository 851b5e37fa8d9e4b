package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"slidebot/config"
	"slidebot/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Service archives converted results to a bucket.
type S3Service struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

func NewS3Service(cfg *config.Config) *S3Service {
	return newS3Service(cfg, nil)
}

func newS3Service(cfg *config.Config, httpClient *http.Client) *S3Service {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	if httpClient != nil {
		awsCfg.HTTPClient = httpClient
	}

	sess := session.Must(session.NewSession(awsCfg))

	return &S3Service{
		bucket:   cfg.S3Bucket,
		prefix:   strings.Trim(cfg.S3Prefix, "/"),
		uploader: s3manager.NewUploader(sess),
	}
}

// ArchiveKey is <prefix>/<yyyy>/<mm>/<dd>/<job id>/<result filename>.
func (s *S3Service) ArchiveKey(job *models.ConversionJob) string {
	key := path.Join(job.CreatedAt.UTC().Format("2006/01/02"), job.ID, job.ResultFilename())
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Archive uploads the job's converted output.
func (s *S3Service) Archive(ctx context.Context, job *models.ConversionJob) error {
	if job.OutputPath == "" {
		return fmt.Errorf("job %s has no output to archive", job.ID)
	}
	return s.Upload(ctx, job.OutputPath, s.ArchiveKey(job))
}

func (s *S3Service) Upload(ctx context.Context, localPath string, s3Path string) error {
	// Open file
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Upload to S3
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Path),
		Body:        file,
		ContentType: aws.String("application/pdf"),
	})

	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}
