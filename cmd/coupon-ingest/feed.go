package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
)

const (
	minCodeLen = 4
	maxCodeLen = 32
)

// Feed column order. The header row is skipped.
const (
	colCode = iota
	colType
	colValue
	colMaxValue
	colUsageLimit
	colDescription
	colStartDate
	colEndDate
	minColumns = colDescription + 1
)

var hundred = decimal.NewFromInt(100)

// record is one parsed feed row and where it came from.
type record struct {
	coupon coupon.Coupon
	feed   int
	line   int
}

// newer reports whether r supersedes other: later feeds win, then later lines.
func (r record) newer(other record) bool {
	if r.feed != other.feed {
		return r.feed > other.feed
	}
	return r.line > other.line
}

// parseRecord converts a CSV row into an active coupon.
func parseRecord(row []string) (coupon.Coupon, error) {
	if len(row) < minColumns {
		return coupon.Coupon{}, errors.Errorf("want at least %d columns, got %d", minColumns, len(row))
	}
	field := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := coupon.Coupon{
		Code:         strings.ToUpper(field(colCode)),
		Description:  field(colDescription),
		DiscountType: pricing.DiscountType(strings.ToUpper(field(colType))),
		Active:       true,
	}
	if n := len(c.Code); n < minCodeLen || n > maxCodeLen {
		return coupon.Coupon{}, errors.Errorf("code %q: length must be %d-%d", c.Code, minCodeLen, maxCodeLen)
	}
	if c.DiscountType != pricing.DiscountPercentage && c.DiscountType != pricing.DiscountFlat {
		return coupon.Coupon{}, errors.Errorf("code %s: unknown discount type %q", c.Code, c.DiscountType)
	}

	value, err := decimal.NewFromString(field(colValue))
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "code %s: value", c.Code)
	}
	if value.IsNegative() || (c.DiscountType == pricing.DiscountPercentage && value.GreaterThan(hundred)) {
		return coupon.Coupon{}, errors.Errorf("code %s: value %s out of range", c.Code, value)
	}
	c.Value = value

	if s := field(colMaxValue); s != "" {
		maxValue, err := decimal.NewFromString(s)
		if err != nil {
			return coupon.Coupon{}, errors.Wrapf(err, "code %s: max value", c.Code)
		}
		c.MaxValue = decimal.NewNullDecimal(maxValue)
	}
	if s := field(colUsageLimit); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return coupon.Coupon{}, errors.Errorf("code %s: usage limit %q", c.Code, s)
		}
		c.UsageLimit = limit
	}
	if c.StartDate, err = parseDate(field(colStartDate)); err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "code %s: start date", c.Code)
	}
	if c.EndDate, err = parseDate(field(colEndDate)); err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "code %s: end date", c.Code)
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return coupon.Coupon{}, errors.Errorf("code %s: ends before it starts", c.Code)
	}
	return c, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, s); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// streamFeed opens a gzip-compressed CSV feed and calls fn for every valid
// row. Malformed rows are logged and skipped.
func streamFeed(ctx context.Context, path string, fn func(line int, c coupon.Coupon) error) (skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				slog.Warn("skipping malformed row", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
				skipped++
				continue
			}
			return skipped, errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[colCode]), "code") {
			continue
		}

		c, err := parseRecord(row)
		if err != nil {
			slog.Warn("skipping invalid row", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
			skipped++
			continue
		}
		if err := fn(line, c); err != nil {
			return skipped, err
		}
	}
}
