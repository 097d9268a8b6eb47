// Package matrixio reads and writes square matrices
// in CSV, coordinate-list CSV and JSON formats,
// from local files, standard streams and S3.
package matrixio

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Format is a matrix file format.
type Format string

const (
	// FormatAuto picks the format from the file extension.
	FormatAuto Format = "auto"
	// FormatCSV is one matrix row per CSV record.
	FormatCSV Format = "csv"
	// FormatCOO is one row,col,value CSV record per nonzero entry.
	FormatCOO Format = "coo"
	// FormatJSON is a JSON array of row arrays.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name.  The empty string means FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatCSV, FormatCOO, FormatJSON:
		return f, nil
	default:
		return "", errors.Errorf("invalid matrix format %#v", s)
	}
}

// Resolve returns f, or if f is FormatAuto, the format implied by the
// extension of name: .json for JSON, .coo for COO, dense CSV otherwise.
func (f Format) Resolve(name string) Format {
	if f != FormatAuto && f != "" {
		return f
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".coo":
		return FormatCOO
	default:
		return FormatCSV
	}
}

// S3Client is the subset of the S3 API that Storage uses.
type S3Client interface {
	manager.UploadAPIClient
	GetObject(
		ctx context.Context, params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// Storage opens matrix files by URI.
//
// Plain paths and file: URIs name local files,
// s3://bucket/key URIs name S3 objects.
// For input, "-" is standard input.
// For output, "" discards, "-" is standard output and "!" standard error.
type Storage struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	mu    sync.Mutex
	s3    S3Client
	newS3 func(ctx context.Context) (S3Client, error)
}

// NewStorage returns a Storage that creates its S3 client on first use,
// from the default AWS configuration chain
// (environment, shared config files, instance roles).
func NewStorage() *Storage {
	return &Storage{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		newS3: func(ctx context.Context) (S3Client, error) {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "cannot load AWS configuration")
			}
			return s3.NewFromConfig(cfg), nil
		},
	}
}

// NewStorageWithS3 returns a Storage that uses the given S3 client.
func NewStorageWithS3(client S3Client) *Storage {
	s := NewStorage()
	s.s3 = client
	return s
}

func (s *Storage) s3Client(ctx context.Context) (S3Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 == nil {
		if s.newS3 == nil {
			return nil, errors.New("no S3 client configured")
		}
		client, err := s.newS3(ctx)
		if err != nil {
			return nil, err
		}
		s.s3 = client
	}
	return s.s3, nil
}

type location struct {
	scheme string
	path   string // file path, or S3 key
	bucket string
}

func parseLocation(uri string) (location, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return location{}, err
	}
	switch parsed.Scheme {
	case "file", "":
		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
		return location{scheme: "file", path: path}, nil
	case "s3":
		key := strings.TrimPrefix(parsed.Path, "/")
		if parsed.Host == "" || key == "" {
			return location{}, errors.Errorf(
				"S3 URI %#v needs both bucket and key", uri)
		}
		return location{scheme: "s3", bucket: parsed.Host, path: key}, nil
	default:
		return location{}, errors.Errorf("invalid matrix URI scheme %#v",
			parsed.Scheme)
	}
}

// Open opens the named input for reading.
func (s *Storage) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if uri == "-" {
		return io.NopCloser(s.Stdin), nil
	}
	loc, err := parseLocation(uri)
	if err != nil {
		return nil, err
	}
	if loc.scheme == "s3" {
		client, err := s.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.path),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "cannot get %#v", uri)
		}
		return out.Body, nil
	}
	return os.Open(loc.path)
}

// Create opens the named output for writing.
// The returned writer must be closed;
// for S3 outputs, Close waits for the upload to finish
// and returns its error.
func (s *Storage) Create(
	ctx context.Context, uri string,
) (io.WriteCloser, error) {
	switch uri {
	case "":
		return discardCloser{}, nil
	case "-":
		return writeNoCloser{s.Stdout}, nil
	case "!":
		return writeNoCloser{s.Stderr}, nil
	}
	loc, err := parseLocation(uri)
	if err != nil {
		return nil, err
	}
	if loc.scheme == "s3" {
		client, err := s.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return s.upload(ctx, client, loc), nil
	}
	return os.Create(loc.path)
}

func (s *Storage) upload(
	ctx context.Context, client S3Client, loc location,
) *s3Writer {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	uploader := manager.NewUploader(client)
	go func() {
		defer close(errCh)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.path),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		if err != nil {
			err = errors.Wrapf(err, "cannot upload s3://%s/%s",
				loc.bucket, loc.path)
		}
		errCh <- err
	}()
	return &s3Writer{ctx: ctx, pw: pw, errCh: errCh}
}

type s3Writer struct {
	ctx   context.Context
	pw    *io.PipeWriter
	errCh <-chan error
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *s3Writer) Close() error {
	_ = w.pw.Close()
	return errFromCh(w.ctx, w.errCh)
}

// CloseWithError aborts the upload.
func (w *s3Writer) CloseWithError(err error) error {
	_ = w.pw.CloseWithError(err)
	_ = errFromCh(w.ctx, w.errCh)
	return err
}

// errFromCh expects an error from the given channel and returns it.
// If ch is closed, errFromCh returns an error.
func errFromCh(ctx context.Context, ch <-chan error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-ch:
		if !ok {
			err = errors.New("error channel closed unexpectedly")
		}
		return err
	}
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }

type writeNoCloser struct{ io.Writer }

func (writeNoCloser) Close() error { return nil }

// LoadMatrix reads a matrix from the named input.
func (s *Storage) LoadMatrix(
	ctx context.Context, uri string, format Format, opts ...ReadOpt,
) (*mat.Dense, error) {
	format = format.Resolve(uri)
	zerolog.Ctx(ctx).Trace().
		Str("uri", uri).
		Str("format", string(format)).
		Msg("loading matrix")
	r, err := s.Open(ctx, uri)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open matrix input")
	}
	defer func() { _ = r.Close() }()
	return ReadMatrix(r, uri, format, opts...)
}

// SaveMatrix writes m to the named output.
func (s *Storage) SaveMatrix(
	ctx context.Context, uri string, m mat.Matrix, format Format,
) error {
	format = format.Resolve(uri)
	zerolog.Ctx(ctx).Trace().
		Str("uri", uri).
		Str("format", string(format)).
		Msg("saving matrix")
	w, err := s.Create(ctx, uri)
	if err != nil {
		return errors.Wrap(err, "cannot create matrix output")
	}
	if err = WriteMatrix(w, m, format); err != nil {
		if aborter, ok := w.(interface{ CloseWithError(error) error }); ok {
			return aborter.CloseWithError(err)
		}
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ReadMatrix reads a matrix in the given format; name labels errors.
func ReadMatrix(
	r io.Reader, name string, format Format, opts ...ReadOpt,
) (*mat.Dense, error) {
	switch format.Resolve(name) {
	case FormatJSON:
		return ReadJSON(r)
	case FormatCOO:
		return ReadCOOCSV(r, name, opts...)
	default:
		return ReadDenseCSV(r, name)
	}
}

// WriteMatrix writes m in the given format;
// FormatAuto writes dense CSV.
func WriteMatrix(w io.Writer, m mat.Matrix, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, m)
	case FormatCOO:
		return WriteCOOCSV(w, m)
	default:
		return WriteDenseCSV(w, m)
	}
}
