package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pthm/snapoff/lib/config"
	"github.com/pthm/snapoff/lib/loader"
)

//go:embed components
var demoComponents embed.FS

// componentSource picks where components are read from: a bucket when
// s3.bucket is set, otherwise components_path. dir is empty unless the
// source is a directory on disk that can be watched.
func componentSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (src loader.Source, dir string, err error) {
	if cfg.S3.Bucket != "" {
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, "", err
		}
		logger.Info("loading components from s3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return loader.NewS3Source(client, cfg.S3.Bucket, cfg.S3.Prefix), "", nil
	}

	info, err := os.Stat(cfg.ComponentsPath)
	if err == nil && info.IsDir() {
		logger.Info("loading components from directory", "dir", cfg.ComponentsPath)
		return loader.DirSource(cfg.ComponentsPath), cfg.ComponentsPath, nil
	}
	logger.Warn("components directory not found, serving built-in demo components", "dir", cfg.ComponentsPath)
	return loader.FSSource{FS: demoComponents, Root: "components"}, "", nil
}

func newS3Client(ctx context.Context, c config.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
