package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Source reads component files. Names are slash separated and relative to
// the components root, e.g. "counter/view.html". Missing files must be
// reported with an error matching fs.ErrNotExist.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// Lister is implemented by sources that can enumerate component directories.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// FSSource reads components from an fs.FS.
type FSSource struct {
	FS fs.FS
	// Root is the directory inside FS that holds components. Empty means ".".
	Root string
}

// DirSource reads components from a directory on disk.
func DirSource(dir string) FSSource {
	return FSSource{FS: os.DirFS(dir)}
}

func (s FSSource) root() string {
	if s.Root == "" {
		return "."
	}
	return s.Root
}

// ReadFile implements Source.
func (s FSSource) ReadFile(_ context.Context, name string) ([]byte, error) {
	return fs.ReadFile(s.FS, path.Join(s.root(), name))
}

// List implements Lister.
func (s FSSource) List(_ context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.FS, s.root())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// S3API is the part of the S3 client the source uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Source reads components from a bucket, one key prefix per component:
//
//	s3://bucket/<prefix>counter/component.json
//	s3://bucket/<prefix>counter/view.html
type S3Source struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Source returns a source over bucket. A non-empty prefix is treated
// as a directory.
func NewS3Source(client S3API, bucket, prefix string) *S3Source {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// ReadFile implements Source.
func (s *S3Source) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := s.prefix + name
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &fs.PathError{Op: "get", Path: key, Err: fs.ErrNotExist}
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List implements Lister using the common prefixes under the root prefix.
func (s *S3Source) List(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", s.prefix, err)
		}
		for _, p := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), s.prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
