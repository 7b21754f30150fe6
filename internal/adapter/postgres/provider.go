// Package postgres extracts traffic/rainfall samples from the road link database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// mpsToMPH converts metres per second to miles per hour.
const mpsToMPH = 2.23694

// Link columns a RoadFilter may select on.
var filterColumns = map[string]bool{
	"street":         true,
	"classification": true,
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Provider implements pipeline.SampleProvider over the link, traffic and
// rainfall tables.
type Provider struct {
	db *sqlx.DB
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Provider, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to sample database: %w", err)
	}
	return NewProvider(db), nil
}

// NewProvider wraps an open database handle.
func NewProvider(db *sqlx.DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) Close() error {
	return p.db.Close()
}

// CheckReadiness pings the database.
func (p *Provider) CheckReadiness(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Roads returns every distinct street plus the classification of every
// motorway link, e.g. "M25".
func (p *Provider) Roads(ctx context.Context) ([]domain.RoadFilter, error) {
	var streets []string
	if err := p.db.SelectContext(ctx, &streets,
		`SELECT DISTINCT street FROM itn_link WHERE street IS NOT NULL AND street <> ''`); err != nil {
		return nil, fmt.Errorf("query streets: %w", err)
	}
	var motorways []string
	if err := p.db.SelectContext(ctx, &motorways,
		`SELECT DISTINCT classification FROM itn_link WHERE description = 'Motorway' AND classification IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("query motorways: %w", err)
	}
	return roadUniverse(streets, motorways), nil
}

func roadUniverse(streets, motorways []string) []domain.RoadFilter {
	out := make([]domain.RoadFilter, 0, len(streets)+len(motorways))
	for _, s := range streets {
		out = append(out, domain.RoadFilter{Column: "street", Value: s})
	}
	for _, m := range motorways {
		out = append(out, domain.RoadFilter{Column: "classification", Value: m})
	}
	return out
}

// Samples runs the sample query once per source window.
func (p *Provider) Samples(ctx context.Context, q domain.SampleQuery) ([]domain.Sample, []domain.Sample, error) {
	training, err := p.samples(ctx, q.Training, q)
	if err != nil {
		return nil, nil, fmt.Errorf("training samples: %w", err)
	}
	validation, err := p.samples(ctx, q.Validation, q)
	if err != nil {
		return nil, nil, fmt.Errorf("validation samples: %w", err)
	}
	return training, validation, nil
}

type sampleRow struct {
	Length      float64 `db:"length"`
	JourneyTime float64 `db:"journey_time"`
	Depth       float64 `db:"depth"`
	Nature      string  `db:"nature"`
	Road        string  `db:"road"`
	Hour        int     `db:"hour"`
	DOW         int     `db:"dow"`
}

func (p *Provider) samples(ctx context.Context, src domain.Source, q domain.SampleQuery) ([]domain.Sample, error) {
	query, args, err := buildSampleQuery(src, q)
	if err != nil {
		return nil, err
	}
	var rows []sampleRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", src.TrafficTable, err)
	}

	out := make([]domain.Sample, 0, len(rows))
	for _, r := range rows {
		if s, ok := toSample(r); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// toSample derives the speed from link length (m) and journey time
// (centiseconds). Rows without a positive journey time are dropped.
func toSample(r sampleRow) (domain.Sample, bool) {
	if r.JourneyTime <= 0 || r.Length <= 0 {
		return domain.Sample{}, false
	}
	return domain.Sample{
		Depth:     r.Depth,
		Speed:     mpsToMPH * r.Length / (r.JourneyTime / 100),
		Nature:    r.Nature,
		Road:      domain.NormalizeRoad(r.Road),
		Hour:      r.Hour,
		DayOfWeek: r.DOW,
	}, true
}

// buildSampleQuery renders the sample SQL for one source window. Table names
// are validated and quoted; every value is a bind parameter.
func buildSampleQuery(src domain.Source, q domain.SampleQuery) (string, []any, error) {
	traffic, err := quoteTable(src.TrafficTable)
	if err != nil {
		return "", nil, err
	}
	rainfall, err := quoteTable(src.RainfallTable)
	if err != nil {
		return "", nil, err
	}
	if len(q.Roads) == 0 {
		return "", nil, errors.New("sample query needs at least one road")
	}

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	byColumn := make(map[string][]string)
	for _, f := range q.Roads {
		if !filterColumns[f.Column] {
			return "", nil, fmt.Errorf("unsupported road filter column %q", f.Column)
		}
		byColumn[f.Column] = append(byColumn[f.Column], f.Value)
	}
	columns := make([]string, 0, len(byColumn))
	for c := range byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	roadConds := make([]string, 0, len(columns))
	for _, c := range columns {
		roadConds = append(roadConds, fmt.Sprintf("link.%s = ANY(%s)", pq.QuoteIdentifier(c), bind(pq.Array(byColumn[c]))))
	}

	where := []string{"(" + strings.Join(roadConds, " OR ") + ")"}
	if len(q.Natures) > 0 {
		where = append(where, "link.nature = ANY("+bind(pq.Array(q.Natures))+")")
	}
	if len(q.Hours) > 0 {
		where = append(where, "EXTRACT(HOUR FROM lower(traffic.period)) = ANY("+bind(pq.Array(toInt64s(q.Hours)))+")")
	}
	if len(q.Days) > 0 {
		where = append(where, "EXTRACT(DOW FROM lower(traffic.period)) = ANY("+bind(pq.Array(toInt64s(q.Days)))+")")
	}

	query := fmt.Sprintf(`
		SELECT
			link.length,
			link.nature,
			COALESCE(NULLIF(link.street, ''), link.classification) AS road,
			traffic.journey_time,
			SUM(COALESCE(rainfall.depth, 0)) AS depth,
			EXTRACT(HOUR FROM lower(traffic.period))::int AS hour,
			EXTRACT(DOW FROM lower(traffic.period))::int AS dow
		FROM %s AS traffic
		JOIN itn_link AS link ON link.toid = traffic.toid
		JOIN link_grid ON link_grid.toid = traffic.toid
		LEFT JOIN %s AS rainfall
			ON rainfall.os_grid = link_grid.box
			AND traffic.period @> rainfall.period
		WHERE %s
		GROUP BY traffic.toid, traffic.period, traffic.journey_time,
			link.length, link.nature, link.street, link.classification`,
		traffic, rainfall, strings.Join(where, "\n\t\t\tAND "))

	return query, args, nil
}

// quoteTable validates a (possibly schema-qualified) table name and quotes
// each part.
func quoteTable(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, "."), nil
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
