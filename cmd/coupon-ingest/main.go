package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
)

// couponWriter persists parsed coupons.
type couponWriter interface {
	UpsertMany(ctx context.Context, list []coupon.Coupon) error
}

type stats struct {
	mu        sync.Mutex
	written   int
	contested int
	skipped   int
}

func (s *stats) add(written, skipped int) {
	s.mu.Lock()
	s.written += written
	s.skipped += skipped
	s.mu.Unlock()
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing partner coupon feeds")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of feed files inside data-dir; later names win on conflicts")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected-codes", 1_000_000, "expected number of codes per feed, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, expected); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, expected uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		slog.Info("no feeds found", slog.String("dir", dataDir), slog.String("pattern", pattern))
		return nil
	}
	sort.Strings(files)

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := ingest(ctx, files, repository.NewCouponRepository(pool), expected)
	if err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int("feeds", len(files)),
		slog.Int("written", st.written),
		slog.Int("contested", st.contested),
		slog.Int("skipped", st.skipped),
	)
	return nil
}

// ingest loads every feed into w. Codes found in only one feed are written
// while streaming. Codes that may appear in several feeds are held back and
// written once at the end, taking the row from the latest feed.
func ingest(ctx context.Context, files []string, w couponWriter, expected uint) (*stats, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))

	filters, err := buildBloomFilters(ctx, files, expected)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: writing coupons")

	st := &stats{}
	var (
		mu        sync.Mutex
		contested = make(map[string]record)
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			batch := make([]coupon.Coupon, 0, batchSize)
			written := 0
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := w.UpsertMany(gCtx, batch); err != nil {
					return err
				}
				written += len(batch)
				batch = batch[:0]
				return nil
			}

			skipped, err := streamFeed(gCtx, path, func(line int, c coupon.Coupon) error {
				if inOtherFeed(filters, i, c.Code) {
					rec := record{coupon: c, feed: i, line: line}
					mu.Lock()
					if prev, ok := contested[c.Code]; !ok || rec.newer(prev) {
						contested[c.Code] = rec
					}
					mu.Unlock()
					return nil
				}
				batch = append(batch, c)
				if len(batch) == batchSize {
					if err := flush(); err != nil {
						return err
					}
					if written%progressEvery < batchSize {
						slog.Info("pass 2 progress", slog.Int("feed", i+1), slog.Int("written", written))
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "ingest %s", path)
			}
			if err := flush(); err != nil {
				return errors.Wrapf(err, "ingest %s", path)
			}
			st.add(written, skipped)

			slog.Info("pass 2 complete", slog.Int("feed", i+1), slog.Int("written", written), slog.Int("skipped", skipped))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("writing contested codes", slog.Int("count", len(contested)))

	batch := make([]coupon.Coupon, 0, batchSize)
	for _, rec := range contested {
		batch = append(batch, rec.coupon)
		if len(batch) == batchSize {
			if err := w.UpsertMany(ctx, batch); err != nil {
				return nil, errors.Wrap(err, "write contested codes")
			}
			batch = batch[:0]
		}
	}
	if err := w.UpsertMany(ctx, batch); err != nil {
		return nil, errors.Wrap(err, "write contested codes")
	}
	st.contested = len(contested)
	st.written += len(contested)

	return st, nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			count := 0
			if _, err := streamFeed(ctx, path, func(_ int, c coupon.Coupon) error {
				filter.AddString(c.Code)
				count++
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.Int("feed", i+1), slog.Int("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// inOtherFeed reports whether code may occur in a feed other than idx.
func inOtherFeed(filters []*bloom.BloomFilter, idx int, code string) bool {
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}
