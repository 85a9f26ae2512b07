package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"loanapproval/ml"
)

// ErrMissingHeader is returned for an empty dataset.
var ErrMissingHeader = errors.New("dataset has no header row")

// LoaderConfig controls how a dataset file is decoded.
type LoaderConfig struct {
	// Charset is any WHATWG encoding label; empty means UTF-8.
	Charset string
}

// Loader reads loan application datasets from CSV files.
type Loader struct {
	decoder encoding.Encoding
	cleaner *Cleaner
	logger  *zap.Logger
}

// NewLoader resolves the charset and uses the default cleaner when cleaner is nil.
func NewLoader(config LoaderConfig, cleaner *Cleaner, logger *zap.Logger) (*Loader, error) {
	enc := encoding.Nop
	if label := strings.TrimSpace(config.Charset); label != "" {
		var err error
		enc, err = htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q: %w", label, err)
		}
	}
	if cleaner == nil {
		cleaner = NewCleaner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{decoder: enc, cleaner: cleaner, logger: logger}, nil
}

// Load reads and cleans every record in the file at path.
func (l *Loader) Load(ctx context.Context, path string) (records []ml.Record, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	records, err = l.Read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	l.logger.Info("dataset loaded", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

// Read parses CSV from r. A UTF-8 byte order mark overrides the configured charset.
func (l *Loader) Read(ctx context.Context, r io.Reader) ([]ml.Record, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(l.decoder.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []ml.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		var rec ml.Record
		for i, raw := range fields {
			if i < len(header) {
				rec.SetField(header[i], raw)
			}
		}
		rows = append(rows, rec)
	}
	return l.cleaner.Clean(rows), nil
}
