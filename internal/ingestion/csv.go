package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"lending-loop-lab/internal/domain"
)

// csvHeader is the long-format column layout: one observation per row.
var csvHeader = []string{"timestamp", "asset", "supply_apy", "borrow_apy"}

// ReadObservations parses long-format CSV rate data from r.
// The first row must be the header timestamp,asset,supply_apy,borrow_apy.
func ReadObservations(r io.Reader) ([]domain.RateObservation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("expected %d columns, got %d: %w", len(csvHeader), len(header), domain.ErrInvalidParameter)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("expected column %q at position %d, got %q: %w", name, i, header[i], domain.ErrInvalidParameter)
		}
	}

	var observations []domain.RateObservation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse timestamp %q: %w", line, record[0], err)
		}
		if record[1] == "" {
			return nil, fmt.Errorf("line %d: empty asset: %w", line, domain.ErrInvalidParameter)
		}
		supply, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse supply_apy %q: %w", line, record[2], err)
		}
		borrow, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse borrow_apy %q: %w", line, record[3], err)
		}

		observations = append(observations, domain.RateObservation{
			Timestamp: ts,
			Asset:     record[1],
			SupplyAPY: supply,
			BorrowAPY: borrow,
		})
	}
	return observations, nil
}

// WriteObservations writes observations as long-format CSV to w.
func WriteObservations(w io.Writer, observations []domain.RateObservation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, obs := range observations {
		record := []string{
			strconv.FormatInt(obs.Timestamp, 10),
			obs.Asset,
			strconv.FormatFloat(obs.SupplyAPY, 'g', -1, 64),
			strconv.FormatFloat(obs.BorrowAPY, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// CSVSource serves observations from a long-format CSV file.
// The file is read once on first use and cached.
type CSVSource struct {
	path string

	once sync.Once
	err  error
	data map[string][]domain.RateObservation
}

// NewCSVSource creates a rate source backed by a CSV file.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) load() {
	f, err := os.Open(s.path)
	if err != nil {
		s.err = fmt.Errorf("open %s: %w", s.path, err)
		return
	}
	defer f.Close()

	observations, err := ReadObservations(f)
	if err != nil {
		s.err = fmt.Errorf("parse %s: %w", s.path, err)
		return
	}

	s.data = make(map[string][]domain.RateObservation)
	for _, obs := range observations {
		s.data[obs.Asset] = append(s.data[obs.Asset], obs)
	}
}

// Assets returns the asset names present in the file.
func (s *CSVSource) Assets() []string {
	s.once.Do(s.load)
	if s.err != nil {
		return nil
	}
	assets := make([]string, 0, len(s.data))
	for asset := range s.data {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Fetch returns observations for an asset within [from, to].
func (s *CSVSource) Fetch(ctx context.Context, asset string, from, to int64) ([]domain.RateObservation, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var observations []domain.RateObservation
	for _, obs := range s.data[asset] {
		if obs.Timestamp >= from && obs.Timestamp <= to {
			observations = append(observations, obs)
		}
	}
	return observations, nil
}

var _ RateSource = (*CSVSource)(nil)
var _ RateSource = (*LlamaSource)(nil)
