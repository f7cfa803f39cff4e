package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source patterns. Anything that matches neither is inline code.
var (
	httpSourcePattern = regexp.MustCompile(`^https?://`)
	s3SourcePattern   = regexp.MustCompile(`^s3://`)
)

// resolveSource turns a bundle source into code: http(s) URLs are
// fetched (FetchError on non-2xx), s3:// URIs load through the
// configured ObjectFetcher, anything else is treated as inline code.
func (e *Engine) resolveSource(ctx context.Context, source string) (string, error) {
	switch {
	case httpSourcePattern.MatchString(source):
		return e.fetchHTTP(ctx, source)
	case s3SourcePattern.MatchString(source):
		return e.fetchObject(source)
	default:
		return source, nil
	}
}

func (e *Engine) fetchHTTP(ctx context.Context, url string) (string, error) {
	client := e.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	return string(body), nil
}

func (e *Engine) fetchObject(uri string) (string, error) {
	if e.cfg.Objects == nil {
		return "", &FetchError{URL: uri, Err: fmt.Errorf("no object fetcher configured")}
	}
	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", &FetchError{URL: uri, Err: fmt.Errorf("malformed s3 uri")}
	}
	body, err := e.cfg.Objects.Fetch(bucket, key)
	if err != nil {
		return "", &FetchError{URL: uri, Err: err}
	}
	return string(body), nil
}

// S3Fetcher adapts an aws-sdk-v2 S3 client to ObjectFetcher.
type S3Fetcher struct {
	Client *s3.Client
}

// Fetch downloads bucket/key and returns the object body.
func (f *S3Fetcher) Fetch(bucket, key string) ([]byte, error) {
	out, err := f.Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
