package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"roboharbor/pkg/logging"
)

const postgresSubsystem = "CatalogPostgres"

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres reads image records from the images table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect image catalog database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping image catalog database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := goose.UpContext(runCtx, db, "migrations"); err != nil {
		return fmt.Errorf("apply image catalog migrations: %w", err)
	}
	logging.Debug(postgresSubsystem, "Image catalog migrations applied")
	return nil
}

// FindImage implements Finder.
func (p *Postgres) FindImage(ctx context.Context, name string) (Image, error) {
	const query = `SELECT name, container_reference, version FROM images WHERE name = $1`
	var img Image
	err := p.pool.QueryRow(ctx, query, name).Scan(&img.Name, &img.ContainerReference, &img.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Image{}, fmt.Errorf("%w: %s", ErrImageNotFound, name)
		}
		return Image{}, fmt.Errorf("query image %s: %w", name, err)
	}
	return img, nil
}

// ListImages implements Lister.
func (p *Postgres) ListImages(ctx context.Context) ([]Image, error) {
	const query = `SELECT name, container_reference, version FROM images ORDER BY name`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.Name, &img.ContainerReference, &img.Version); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// Seed inserts images that are not present yet.
func (p *Postgres) Seed(ctx context.Context, images []Image) error {
	const query = `INSERT INTO images (name, container_reference, version)
		VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`
	for _, img := range images {
		if _, err := p.pool.Exec(ctx, query, img.Name, img.ContainerReference, img.Version); err != nil {
			return fmt.Errorf("seed image %s: %w", img.Name, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
