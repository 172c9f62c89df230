package main

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/cellkit/internal/config"
	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/pkg/persist"
)

// storeFor opens the store named by a snapshot target: a directory path or
// an s3://bucket/prefix URL.
func storeFor(target string, codec persist.Codec, s3cfg config.S3Config) (persist.Store, error) {
	if !strings.Contains(target, "://") {
		return persist.NewFileStore(target).WithExtension(codec.Extension()), nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.New("C132").WithDetailf("%q", target).Wrap(err)
	}
	if u.Scheme != "s3" {
		return nil, errors.New("C132").WithDetailf("scheme %q in %q", u.Scheme, target)
	}
	if u.Host == "" {
		return nil, errors.New("C132").WithDetailf("%q has no bucket", target)
	}

	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return persist.NewS3Store(newS3Client(s3cfg), u.Host, prefix).WithContentType(codec.ContentType()), nil
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "cellkit config",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts)
}
