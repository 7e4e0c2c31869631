// Package rekognition is the Amazon Rekognition image moderation adapter.
//
// Rekognition needs the image bytes, so the adapter downloads the image into
// a temporary file first. The file is removed on every exit path.
package rekognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/ineyio/imgguard"
)

// Name is the provider identifier.
const Name = "rekognition"

const (
	defaultRegion       = "us-east-1"
	defaultMaxImageSize = 5 << 20 // Rekognition's limit for inline bytes
	sniffLen            = 512
)

// DetectAPI is the part of the Rekognition client the adapter uses.
type DetectAPI interface {
	DetectModerationLabels(ctx context.Context, params *rekognition.DetectModerationLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error)
}

// Provider is the Rekognition adapter.
type Provider struct {
	client          DetectAPI
	httpClient      *http.Client
	downloadTimeout time.Duration
	maxImageSize    int64
	tempDir         string
	logger          *zap.Logger
}

var _ imgguard.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets the client used to download images.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithDownloadTimeout bounds each image download (default 10s).
func WithDownloadTimeout(d time.Duration) Option {
	return func(p *Provider) { p.downloadTimeout = d }
}

// WithMaxImageSize caps the number of bytes downloaded (default 5 MiB).
func WithMaxImageSize(n int64) Option {
	return func(p *Provider) { p.maxImageSize = n }
}

// WithTempDir sets the directory for downloaded images (default os.TempDir).
func WithTempDir(dir string) Option {
	return func(p *Provider) { p.tempDir = dir }
}

// WithLogger sets the logger used for cleanup failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a provider on top of an existing Rekognition client.
func New(client DetectAPI, opts ...Option) *Provider {
	p := &Provider{
		client:          client,
		httpClient:      &http.Client{},
		downloadTimeout: imgguard.DefaultDownloadTimeout,
		maxImageSize:    defaultMaxImageSize,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Credentials are static AWS credentials. Empty keys fall back to the
// default AWS credential chain.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// NewFromCredentials builds a Rekognition client and wraps it in a Provider.
func NewFromCredentials(ctx context.Context, creds Credentials, opts ...Option) (*Provider, error) {
	region := creds.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("imgguard/rekognition: load aws config: %w", err)
	}
	return New(rekognition.NewFromConfig(awsCfg), opts...), nil
}

func (p *Provider) Name() string { return Name }

// Classify downloads the image and runs DetectModerationLabels on its bytes.
func (p *Provider) Classify(ctx context.Context, imageURL string) (imgguard.RawResult, error) {
	path, err := p.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read downloaded image: %v", imgguard.ErrInternal, err)
	}

	out, err := p.client.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image:         &types.Image{Bytes: data},
		MinConfidence: aws.Float32(confidenceThreshold),
	})
	if err != nil {
		return nil, mapAPIError(err)
	}
	return resultFromOutput(out), nil
}

// Normalize maps a Result to a Verdict.
func (p *Provider) Normalize(raw imgguard.RawResult, imageURL string) (imgguard.Verdict, error) {
	switch res := raw.(type) {
	case Result:
		return Normalize(res, imageURL), nil
	case *Result:
		return Normalize(*res, imageURL), nil
	default:
		return imgguard.Verdict{}, fmt.Errorf("%w: rekognition: unexpected raw result %T", imgguard.ErrInternal, raw)
	}
}

// download fetches imageURL into a temporary file and returns its path. On
// error no file is left behind.
func (p *Provider) download(ctx context.Context, imageURL string) (path string, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", imgguard.ErrImageNotFound, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download image: %v", imgguard.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: download image: status %d", imgguard.ErrImageNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: download image: status %d", imgguard.ErrProviderUnavailable, resp.StatusCode)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: download image: %v", imgguard.ErrProviderUnavailable, err)
	}
	head = head[:n]
	if n == 0 {
		return "", fmt.Errorf("%w: empty image body", imgguard.ErrImageNotFound)
	}
	if ct := http.DetectContentType(head); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%w: content is %s, not an image", imgguard.ErrImageNotFound, ct)
	}

	f, err := os.CreateTemp(p.tempDir, "imgguard-*.img")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", imgguard.ErrInternal, err)
	}
	tmpPath := f.Name()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close temp file: %v", imgguard.ErrInternal, cerr)
		}
		if err != nil {
			p.cleanup(tmpPath)
			path = ""
		}
	}()

	if _, err = f.Write(head); err != nil {
		return "", fmt.Errorf("%w: write temp file: %v", imgguard.ErrInternal, err)
	}
	written, err := io.Copy(f, io.LimitReader(resp.Body, p.maxImageSize-int64(n)+1))
	if err != nil {
		return "", fmt.Errorf("%w: download image: %v", imgguard.ErrProviderUnavailable, err)
	}
	if int64(n)+written > p.maxImageSize {
		return "", fmt.Errorf("%w: image exceeds %d bytes", imgguard.ErrImageNotFound, p.maxImageSize)
	}
	return tmpPath, nil
}

// cleanup removes a downloaded file. Failures are logged only.
func (p *Provider) cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("remove temporary image", zap.String("path", path), zap.Error(err))
	}
}

// mapAPIError maps Rekognition and transport errors to imgguard errors.
func mapAPIError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "LimitExceededException":
			return fmt.Errorf("%w: rekognition: %s", imgguard.ErrRateLimited, apiErr.ErrorMessage())
		case "AccessDeniedException", "UnrecognizedClientException", "InvalidSignatureException",
			"ExpiredTokenException", "MissingAuthenticationTokenException":
			return fmt.Errorf("%w: rekognition: %s", imgguard.ErrAuthFailed, apiErr.ErrorMessage())
		case "InvalidImageFormatException", "ImageTooLargeException", "InvalidParameterException":
			return fmt.Errorf("%w: rekognition: %s", imgguard.ErrImageNotFound, apiErr.ErrorMessage())
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: rekognition: %s", imgguard.ErrProviderUnavailable, apiErr.ErrorMessage())
		}
		return fmt.Errorf("%w: rekognition %s: %s", imgguard.ErrInternal, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: rekognition: %v", imgguard.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: rekognition: %v", imgguard.ErrInternal, err)
}
