package core

// Metadata file handling — downloading and hash verifying the JSON referenced
// by set_metadata extrinsics, plus logo/metadata uploads through a pluggable
// storage driver.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"dao-service/pkg/config"
)

// Uploader stores a file under a destination path and returns its public URL.
type Uploader interface {
	UploadFile(ctx context.Context, file io.Reader, storageDestination string) (string, error)
}

// UploadResult is the outcome of a metadata upload.
type UploadResult struct {
	Metadata     map[string]any `json:"metadata"`
	MetadataHash string         `json:"metadata_hash"`
	MetadataURL  string         `json:"metadata_url"`
}

// FileHandler hashes, downloads and uploads metadata documents.
type FileHandler struct {
	hash      func([]byte) string
	uploader  Uploader
	client    *http.Client
	logoSizes map[string]config.LogoSize
}

// NewFileHandler builds a FileHandler for the configured hash algorithm and
// upload driver. Unknown values are fatal configuration errors.
func NewFileHandler(cfg *config.Config) (*FileHandler, error) {
	h := &FileHandler{
		client:    &http.Client{Timeout: 30 * time.Second},
		logoSizes: cfg.LogoSizes,
	}
	switch cfg.EncryptionAlgorithm {
	case "sha3_256":
		h.hash = func(data []byte) string {
			digest := sha3.Sum256(data)
			return hex.EncodeToString(digest[:])
		}
	case "sha256":
		h.hash = func(data []byte) string {
			digest := sha256.Sum256(data)
			return hex.EncodeToString(digest[:])
		}
	case "blake2b_256":
		h.hash = func(data []byte) string {
			digest := blake2b.Sum256(data)
			return hex.EncodeToString(digest[:])
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.EncryptionAlgorithm)
	}

	switch cfg.FileUploadClass {
	case "local":
		h.uploader = &localUploader{root: "media", baseURL: "/media"}
	case "s3":
		uploader, err := newS3Uploader(cfg)
		if err != nil {
			return nil, err
		}
		h.uploader = uploader
	case "test":
		h.uploader = &testUploader{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUploadDriver, cfg.FileUploadClass)
	}
	return h, nil
}

// Hash returns the hex digest of data under the configured algorithm.
func (h *FileHandler) Hash(data []byte) string {
	return h.hash(data)
}

// DownloadMetadata fetches the metadata document at url and verifies it
// hashes to metadataHash. ErrHashMismatch is returned on tampering.
func (h *FileHandler) DownloadMetadata(ctx context.Context, url, metadataHash string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading metadata: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if h.hash(data) != metadataHash {
		return nil, ErrHashMismatch
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// UploadMetadata serializes metadata as JSON, uploads it below
// storageDestination and returns the document together with its hash and URL.
func (h *FileHandler) UploadMetadata(ctx context.Context, metadata map[string]any, storageDestination string) (*UploadResult, error) {
	encoded, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return nil, err
	}
	url, err := h.uploader.UploadFile(ctx, bytes.NewReader(encoded), path.Join(storageDestination, "metadata.json"))
	if err != nil {
		return nil, err
	}
	return &UploadResult{Metadata: metadata, MetadataHash: h.hash(encoded), MetadataURL: url}, nil
}

// UploadDaoMetadata resizes the logo to every configured size, uploads the
// variants and then the enclosing metadata document.
func (h *FileHandler) UploadDaoMetadata(ctx context.Context, metadata map[string]any, logo io.Reader, logoName, contentType, storageDestination string) (*UploadResult, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(logoName)), ".")
	if format == "jpg" {
		format = "jpeg"
	}
	imagingFormat, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, fmt.Errorf("unsupported logo format %q: %w", format, err)
	}
	img, err := imaging.Decode(logo)
	if err != nil {
		return nil, fmt.Errorf("decoding logo: %w", err)
	}

	logos := map[string]any{"content_type": contentType}
	for sizeName, size := range h.logoSizes {
		resized := imaging.Resize(img, size.Width, size.Height, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imagingFormat); err != nil {
			return nil, fmt.Errorf("encoding %s logo: %w", sizeName, err)
		}
		url, err := h.uploader.UploadFile(ctx, &buf, path.Join(storageDestination, fmt.Sprintf("logo_%s.%s", sizeName, format)))
		if err != nil {
			return nil, err
		}
		logos[sizeName] = map[string]any{"url": url}
	}

	enriched := map[string]any{"images": map[string]any{"logo": logos}}
	for key, value := range metadata {
		enriched[key] = value
	}
	return h.UploadMetadata(ctx, enriched, storageDestination)
}

// localUploader writes files below a media directory on disk.
type localUploader struct {
	root    string
	baseURL string
}

func (u *localUploader) UploadFile(_ context.Context, file io.Reader, storageDestination string) (string, error) {
	target := filepath.Join(u.root, filepath.FromSlash(storageDestination))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return u.baseURL + "/" + storageDestination, nil
}

// s3Uploader stores files in the configured S3 bucket.
type s3Uploader struct {
	client *s3.Client
	bucket string
	region string
}

func newS3Uploader(cfg *config.Config) (*s3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &s3Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.AWS.StorageBucketName,
		region: cfg.AWS.Region,
	}, nil
}

func (u *s3Uploader) UploadFile(ctx context.Context, file io.Reader, storageDestination string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(storageDestination),
		Body:   file,
		ACL:    "public-read",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to s3: %w", storageDestination, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, storageDestination), nil
}

// testUploader records nothing and returns a deterministic URL.
type testUploader struct{}

func (u *testUploader) UploadFile(_ context.Context, file io.Reader, storageDestination string) (string, error) {
	_, _ = io.Copy(io.Discard, file)
	return "https://testserver/" + storageDestination, nil
}
