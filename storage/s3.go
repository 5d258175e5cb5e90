package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"deposit-bot/config"
	"deposit-bot/models"
	"deposit-bot/providers"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if cfg.S3URL == "" || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_URL and S3_BUCKET must be set")
	}
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// ObjectStore ist der Teil des S3-Clients, den der Speicher braucht.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ColdTier legt Sammlungen als Präfixe in einem Bucket ab.
// Veröffentlichen schreibt ein Manifest; der persistente Identifier ist dessen URL.
type S3ColdTier struct {
	Client  ObjectStore
	Bucket  string
	BaseURL string
	Prefix  string
	Logger  *zap.Logger

	now   func() time.Time
	files map[string][]string
}

var _ providers.ColdTier = (*S3ColdTier)(nil)

// NewS3ColdTier erstellt das S3-Langzeitarchiv.
func NewS3ColdTier(client ObjectStore, cfg *config.Config, logger *zap.Logger) *S3ColdTier {
	return &S3ColdTier{
		Client:  client,
		Bucket:  cfg.S3Bucket,
		BaseURL: strings.TrimRight(cfg.S3URL, "/"),
		Prefix:  "archive",
		Logger:  logger,
		now:     time.Now,
		files:   map[string][]string{},
	}
}

func (s *S3ColdTier) Name() string { return "s3" }

func (s *S3ColdTier) key(col *models.Collection, name string) string {
	return fmt.Sprintf("%s/%s/%s", s.Prefix, col.ID, name)
}

// CreateCollection vergibt eine neue Sammlungs-ID und legt die Metadaten ab.
func (s *S3ColdTier) CreateCollection(ctx context.Context, metadata map[string]any) (*models.Collection, error) {
	col := &models.Collection{ID: uuid.NewString()}
	col.UploadURL = fmt.Sprintf("%s/%s/%s/%s", s.BaseURL, s.Bucket, s.Prefix, col.ID)
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, s.key(col, "metadata.json"), data); err != nil {
		return nil, fmt.Errorf("s3 create collection: %w", err)
	}
	return col, nil
}

// Upload lädt eine Datei in die Sammlung.
func (s *S3ColdTier) Upload(ctx context.Context, col *models.Collection, name string, data []byte) error {
	if err := s.put(ctx, s.key(col, name), data); err != nil {
		return fmt.Errorf("s3 upload %s: %w", name, err)
	}
	s.files[col.ID] = append(s.files[col.ID], name)
	return nil
}

// Publish schreibt das Manifest der Sammlung.
func (s *S3ColdTier) Publish(ctx context.Context, col *models.Collection) (*models.Publication, error) {
	manifest := map[string]any{
		"collection_id": col.ID,
		"published_at":  s.now().UTC().Format(time.RFC3339),
		"files":         s.files[col.ID],
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	key := s.key(col, "manifest.json")
	if err := s.put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("s3 publish: %w", err)
	}
	delete(s.files, col.ID)
	link := fmt.Sprintf("%s/%s/%s", s.BaseURL, s.Bucket, key)
	s.Logger.Info("Collection published to S3", zap.String("collection_id", col.ID), zap.String("manifest", link))
	return &models.Publication{PersistentID: link, RecordURL: col.UploadURL}, nil
}

// FileURL gibt den öffentlichen Link auf eine Datei im Bucket zurück.
func (s *S3ColdTier) FileURL(col *models.Collection, _ *models.Publication, name string) string {
	return fmt.Sprintf("%s/%s/%s", s.BaseURL, s.Bucket, s.key(col, name))
}

func (s *S3ColdTier) put(ctx context.Context, key string, data []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
