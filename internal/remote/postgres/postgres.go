// Package postgres implements the remote service API on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

//go:embed schema/001_remote_services.sql
var schema string

// Open connects to databaseURL through the pgx database/sql driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Client is a remote.Client storing records in PostgreSQL.
type Client struct {
	db          *sql.DB
	idGenerator func() string
	now         func() time.Time
}

// NewClient wraps an open database handle.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db, idGenerator: uuid.NewString, now: time.Now}
}

// Migrate creates the tables used by Client.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

func dateParam(d instance.Date) time.Time {
	return d.In(time.UTC)
}

// ListServices returns the team's services ordered by date then insertion.
func (c *Client) ListServices(ctx context.Context, teamID string, opts remote.ListOptions) ([]remote.Service, error) {
	query := `SELECT id, team_id, name, service_date, start_time, status, created_at
		FROM remote_services WHERE team_id = $1`
	args := []any{teamID}

	if !opts.StartDate.IsZero() {
		args = append(args, dateParam(opts.StartDate))
		query += fmt.Sprintf(" AND service_date >= $%d", len(args))
	}
	if !opts.EndDate.IsZero() {
		args = append(args, dateParam(opts.EndDate))
		query += fmt.Sprintf(" AND service_date <= $%d", len(args))
	}
	if !opts.IncludePast {
		args = append(args, dateParam(instance.DateOf(c.now())))
		query += fmt.Sprintf(" AND service_date >= $%d", len(args))
	}
	query += " ORDER BY service_date ASC, seq ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]remote.Service, 0)
	for rows.Next() {
		var (
			svc         remote.Service
			serviceDate time.Time
			status      string
		)
		if err := rows.Scan(&svc.ID, &svc.TeamID, &svc.Name, &serviceDate, &svc.StartTime, &status, &svc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		svc.ServiceDate = instance.DateOf(serviceDate.UTC())
		svc.Status = remote.Status(status)
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// CreateService inserts a service record.
func (c *Client) CreateService(ctx context.Context, input remote.CreateServiceInput) (remote.Service, error) {
	status := input.Status
	if status == "" {
		status = remote.StatusDraft
	}
	svc := remote.Service{
		ID:          c.idGenerator(),
		TeamID:      input.TeamID,
		Name:        input.Name,
		ServiceDate: input.ServiceDate,
		StartTime:   input.StartTime,
		Status:      status,
		CreatedAt:   c.now().UTC(),
	}

	const insert = `INSERT INTO remote_services (id, team_id, name, service_date, start_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := c.db.ExecContext(ctx, insert, svc.ID, svc.TeamID, svc.Name, dateParam(svc.ServiceDate), svc.StartTime, string(svc.Status), svc.CreatedAt); err != nil {
		return remote.Service{}, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// UpdateService patches a service record.
func (c *Client) UpdateService(ctx context.Context, id string, input remote.UpdateServiceInput) error {
	if input.Status == nil {
		return c.ensureService(ctx, id)
	}
	return c.setStatus(ctx, id, *input.Status)
}

// PublishService marks a service published.
func (c *Client) PublishService(ctx context.Context, id string) error {
	return c.setStatus(ctx, id, remote.StatusPublished)
}

func (c *Client) setStatus(ctx context.Context, id string, status remote.Status) error {
	result, err := c.db.ExecContext(ctx, `UPDATE remote_services SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update service %s: %w", id, err)
	}
	return requireRow(result, id)
}

func (c *Client) ensureService(ctx context.Context, id string) error {
	var exists int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM remote_services WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("service %s: %w", id, remote.ErrNotFound)
	}
	return err
}

// DeleteService removes a service and its assignments.
func (c *Client) DeleteService(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM remote_services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service %s: %w", id, err)
	}
	return requireRow(result, id)
}

// GetOrCreateRole returns the team role named nameEn (case-insensitive),
// creating it when missing.
func (c *Client) GetOrCreateRole(ctx context.Context, teamID, nameEn, nameLocal, emoji string) (remote.Role, error) {
	const insert = `INSERT INTO remote_roles (id, team_id, name_en, name_local, emoji)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`
	if _, err := c.db.ExecContext(ctx, insert, c.idGenerator(), teamID, nameEn, nameLocal, emoji); err != nil {
		return remote.Role{}, fmt.Errorf("create role %s: %w", nameEn, err)
	}

	var role remote.Role
	const query = `SELECT id, team_id, name_en, name_local, emoji FROM remote_roles
		WHERE team_id = $1 AND lower(name_en) = lower($2)`
	if err := c.db.QueryRowContext(ctx, query, teamID, nameEn).Scan(&role.ID, &role.TeamID, &role.NameEn, &role.NameLocal, &role.Emoji); err != nil {
		return remote.Role{}, fmt.Errorf("get role %s: %w", nameEn, err)
	}
	return role, nil
}

// SyncAssignments replaces the assignments of a service in one transaction.
func (c *Client) SyncAssignments(ctx context.Context, serviceID string, assignments []remote.AssignmentInput) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT 1 FROM remote_services WHERE id = $1 FOR UPDATE`, serviceID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("service %s: %w", serviceID, remote.ErrNotFound)
		}
		return fmt.Errorf("lock service %s: %w", serviceID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM remote_service_assignments WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	for _, a := range assignments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO remote_service_assignments (service_id, team_member_id, role_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			serviceID, a.TeamMemberID, a.RoleID,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Assignments returns the stored assignments of a service.
func (c *Client) Assignments(ctx context.Context, serviceID string) ([]remote.AssignmentInput, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT team_member_id, role_id FROM remote_service_assignments WHERE service_id = $1 ORDER BY team_member_id, role_id`,
		serviceID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := make([]remote.AssignmentInput, 0)
	for rows.Next() {
		var a remote.AssignmentInput
		if err := rows.Scan(&a.TeamMemberID, &a.RoleID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("service %s: %w", id, remote.ErrNotFound)
	}
	return nil
}

var _ remote.Client = (*Client)(nil)
