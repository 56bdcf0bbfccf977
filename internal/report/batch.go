package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"mitostat/internal/blob"
	"mitostat/internal/core"
	"mitostat/pkg/domain"
)

// Skipped records a region left out of the report.
type Skipped struct {
	Region string
	Err    error
}

// Summary lists the sheets written and the regions skipped by a batch.
type Summary struct {
	Sheets  []string
	Skipped []Skipped
}

// Batch builds one sheet per region. Region-scoped failures (alignment, empty
// population, unknown region or reference, unusable sheet name) are logged and
// the region is skipped; any other error aborts the batch.
func Batch(ctx context.Context, b *Builder, regions []*string, logger core.Logger) (Summary, error) {
	var sum Summary
	for _, region := range regions {
		label := domain.ScopeLabel(region)
		err := b.Build(ctx, region)
		switch {
		case err == nil:
			sum.Sheets = append(sum.Sheets, label)
			if logger != nil {
				logger.Info("sheet written", "region", label)
			}
		case domain.IsRegionScoped(err) || errors.Is(err, ErrInvalidSheetName):
			sum.Skipped = append(sum.Skipped, Skipped{Region: label, Err: err})
			if logger != nil {
				logger.Warn("region skipped", "region", label, "error", err)
			}
		default:
			return sum, fmt.Errorf("region %s: %w", label, err)
		}
	}
	return sum, nil
}

// Scopes converts sheet labels into region filters. An empty list means ALL
// followed by every known region.
func Scopes(labels []string, known []string) []*string {
	if len(labels) == 0 {
		labels = append([]string{domain.AllRegionsLabel}, known...)
	}
	out := make([]*string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		scope := domain.ParseScope(l)
		key := domain.ScopeLabel(scope)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, scope)
	}
	return out
}

// Publisher stores serialized workbooks in a blob store.
type Publisher struct {
	store  blob.Store
	prefix string
	now    func() time.Time
}

// NewPublisher returns a publisher writing under prefix ("reports" when empty).
func NewPublisher(store blob.Store, prefix string) *Publisher {
	if prefix == "" {
		prefix = "reports"
	}
	return &Publisher{store: store, prefix: strings.TrimSuffix(prefix, "/"), now: func() time.Time { return time.Now().UTC() }}
}

// Published describes a stored workbook.
type Published struct {
	Info blob.Info
	URL  string
}

// Publish serializes wb and stores it at key, or at <prefix>/<uuid>.xlsx when
// key is empty.
func (p *Publisher) Publish(ctx context.Context, wb *Workbook, key string) (Published, error) {
	if key == "" {
		key = p.prefix + "/" + uuid.NewString() + ".xlsx"
	}
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		return Published{}, fmt.Errorf("serialize workbook: %w", err)
	}
	info, err := p.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"sheets":    strings.Join(wb.Sheets(), ","),
			"generated": p.now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return Published{}, fmt.Errorf("store workbook: %w", err)
	}
	url, err := p.store.Locate(ctx, info.Key, 0)
	if err != nil {
		return Published{}, err
	}
	return Published{Info: info, URL: url}, nil
}

// List returns the stored artifacts whose key starts with prefix, ordered by key.
func (p *Publisher) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	infos, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list workbooks: %w", err)
	}
	return infos, nil
}

// Fetch copies the workbook stored at key to w.
func (p *Publisher) Fetch(ctx context.Context, key string, w io.Writer) (blob.Info, error) {
	info, rc, err := p.store.Get(ctx, key)
	if err != nil {
		return blob.Info{}, fmt.Errorf("fetch workbook %s: %w", key, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return blob.Info{}, fmt.Errorf("copy workbook %s: %w", key, err)
	}
	return info, nil
}

// Delete removes the workbook stored at key and reports whether it existed.
func (p *Publisher) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := p.store.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("delete workbook %s: %w", key, err)
	}
	return ok, nil
}
