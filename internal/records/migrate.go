package records

import (
	"context"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Migrator applies the embedded migrations to a BigQuery dataset.
type Migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	appliedBy string
	log       zerolog.Logger
}

// NewMigrator creates a migrator for project/dataset. tableID names the
// records table; empty means DefaultCollection.
func NewMigrator(client *bigquery.Client, projectID, datasetID, tableID, appliedBy string, log zerolog.Logger) *Migrator {
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	if tableID == "" {
		tableID = DefaultCollection
	}
	return &Migrator{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		appliedBy: appliedBy,
		log:       log,
	}
}

// Run applies every migration not yet recorded and returns how many ran.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	migrations, err := LoadMigrations(migrationFiles, m.projectID, m.datasetID, m.tableID)
	if err != nil {
		return 0, fmt.Errorf("Migrator.Run: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrator.Run: %w", err)
	}

	count := 0
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			m.log.Debug().Int("version", mig.Version).Str("name", mig.Name).Msg("Migration already applied")
			continue
		}

		m.log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying migration")

		if _, err := runDML(ctx, m.client.Query(mig.SQL)); err != nil {
			return count, fmt.Errorf("Migrator.Run: %04d_%s: %w", mig.Version, mig.Name, err)
		}
		if err := m.record(ctx, mig); err != nil {
			return count, fmt.Errorf("Migrator.Run: recording %04d_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}

	return count, nil
}

// LoadMigrations reads NNNN_name.sql files from fsys in version order,
// substituting the {{PROJECT_ID}}, {{DATASET_ID}} and {{TABLE_ID}} placeholders. The
// checksum covers the file before substitution.
func LoadMigrations(fsys fs.FS, projectID, datasetID, tableID string) ([]Migration, error) {
	entries, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var migrations []Migration
	for _, path := range entries {
		filename := path[strings.LastIndexByte(path, '/')+1:]
		matches := migrationPattern.FindStringSubmatch(filename)
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
		sql = strings.ReplaceAll(sql, "{{TABLE_ID}}", tableID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: filename,
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]AppliedMigration, error) {
	q := m.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, m.projectID, m.datasetID))

	it, err := q.Read(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return map[int]AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	applied := make(map[int]AppliedMigration)
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}

		applied[int(row.Version)] = AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		}
	}
	return applied, nil
}

func (m *Migrator) record(ctx context.Context, mig Migration) error {
	q := m.client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.projectID, m.datasetID))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	}

	_, err := runDML(ctx, q)
	return err
}
