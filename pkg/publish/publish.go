// Package publish persists built deck documents so they can be served from a
// stable URL. Reports go to S3 when configured and to a local directory
// otherwise. Protected reports are stored wrapped in a password envelope that
// is checked again on fetch.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/deck"
)

// Storage options.
const (
	OptionS3    = "s3"
	OptionLocal = "local"
)

var (
	ErrUnknownOption = errors.New("unknown storage option")
	ErrMissingBucket = errors.New("s3 storage requires a bucket")
	ErrUnauthorized  = errors.New("password does not match")
)

// Config selects and parameterizes the storage backend. Environment is used
// as the key prefix so multiple deployments can share one bucket.
type Config struct {
	Option      string `yaml:"option"`
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	LocalDir    string `yaml:"localDir"`
	Environment string `yaml:"environment"`
}

// ConfigFromEnv reads the storage settings the deployment exports.
func ConfigFromEnv() Config {
	cfg := Config{
		Option:      os.Getenv("OBJECT_STORAGE_OPTION"),
		Bucket:      os.Getenv("OBJECT_STORAGE_BUCKET"),
		Region:      os.Getenv("S3_REGION_NAME"),
		Endpoint:    os.Getenv("S3_STORAGE_ENDPOINT"),
		LocalDir:    os.Getenv("PUBLISH_DIR"),
		Environment: os.Getenv("ENVIRONMENT"),
	}

	if cfg.Environment == "" {
		cfg.Environment = "qa"
	}

	if cfg.LocalDir == "" {
		cfg.LocalDir = "publish"
	}

	return cfg
}

// store abstracts the object storage backend.
type store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Publisher uploads and retrieves published deck documents.
type Publisher struct {
	log   logrus.FieldLogger
	store store
	env   string
}

// New builds a publisher for the configured backend. An empty option falls
// back to local directory storage.
func New(ctx context.Context, log logrus.FieldLogger, cfg Config) (*Publisher, error) {
	p := &Publisher{
		log: log.WithField("component", "publish"),
		env: cfg.Environment,
	}

	switch cfg.Option {
	case OptionS3:
		if cfg.Bucket == "" {
			return nil, ErrMissingBucket
		}

		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating s3 client: %w", err)
		}

		p.store = &s3Store{client: client, bucket: cfg.Bucket}
	case OptionLocal, "":
		if cfg.Option == "" {
			p.log.Warn("No storage option configured, published reports will be saved locally")
		}

		p.store = &localStore{dir: cfg.LocalDir}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, cfg.Option)
	}

	return p, nil
}

// protectedEnvelope wraps a deck document with the password that unlocks it.
type protectedEnvelope struct {
	Data     json.RawMessage `json:"data"`
	Password string          `json:"password"`
}

// Publish stores the document and returns the filename it can be fetched
// under.
func (p *Publisher) Publish(ctx context.Context, doc *deck.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	filename := shortID(11)

	if err := p.store.Put(ctx, p.env+"/"+filename, data); err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}

	p.log.WithField("file", filename).Info("Published report")

	return filename, nil
}

// PublishProtected stores the document wrapped in a password envelope.
func (p *Publisher) PublishProtected(ctx context.Context, doc *deck.Document, password string) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	envelope, err := json.Marshal(protectedEnvelope{Data: data, Password: password})
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	filename := shortID(15)

	if err := p.store.Put(ctx, p.env+"/"+filename, envelope); err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}

	p.log.WithField("file", filename).Info("Published protected report")

	return filename, nil
}

// Fetch returns a previously published document.
func (p *Publisher) Fetch(ctx context.Context, filename string) (json.RawMessage, error) {
	data, err := p.store.Get(ctx, p.env+"/"+filename)
	if err != nil {
		return nil, fmt.Errorf("downloading report %q: %w", filename, err)
	}

	return data, nil
}

// FetchProtected returns a protected document if the password matches its
// envelope.
func (p *Publisher) FetchProtected(ctx context.Context, filename, password string) (json.RawMessage, error) {
	data, err := p.store.Get(ctx, p.env+"/"+filename)
	if err != nil {
		return nil, fmt.Errorf("downloading report %q: %w", filename, err)
	}

	var envelope protectedEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope for %q: %w", filename, err)
	}

	if password != envelope.Password {
		return nil, ErrUnauthorized
	}

	return envelope.Data, nil
}

// ServePath is the relative URL a published report is rendered from.
func ServePath(filename string) string {
	return "/build-wbr/publish?file=" + filename
}

// ProtectedServePath is the relative URL a protected report is rendered from.
func ProtectedServePath(filename string) string {
	return "/build-wbr/publish/protected?file=" + filename
}

// shortID returns the trailing n characters of a fresh UUID, enough to be
// unique per bucket prefix while keeping share URLs short.
func shortID(n int) string {
	id := uuid.NewString()

	return id[len(id)-n:]
}
