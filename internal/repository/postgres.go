// Package repository contém a implementação de acesso a dados em
// PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/acassiusalves/rotaExata-sub002/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrBatchNotFound é retornado quando o batch não existe.
var (
	ErrBatchNotFound = errors.New("batch not found")
	// ErrRouteNotFound é retornado quando a rota não existe.
	ErrRouteNotFound = errors.New("route not found")
	// ErrRouteNotDraft é retornado ao atribuir motorista a uma rota que já
	// saiu do rascunho.
	ErrRouteNotDraft = errors.New("route is not in draft status")
	// ErrStopOwnedByOtherRoute é retornado quando uma edição de rota
	// referencia uma parada que pertence a outra rota. Cada parada vive em
	// exatamente uma rota; mover uma parada exige removê-la da rota de
	// origem primeiro.
	ErrStopOwnedByOtherRoute = errors.New("stop belongs to another route")
	// ErrStopNotFound é retornado quando a parada não existe.
	ErrStopNotFound = errors.New("stop not found")
	// ErrOrderNotFound é retornado quando o pedido não existe.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotificationNotFound é retornado quando a notificação não existe.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrEarningsNotFound é retornado quando a rota ainda não tem ganhos calculados.
	ErrEarningsNotFound = errors.New("earnings not computed for route")
	// ErrPendingExists é retornado quando outra notificação pendente venceu a
	// corrida de inserção para a mesma rota. O chamador re-tenta como merge.
	ErrPendingExists = errors.New("pending notification already exists for route")
	// ErrStaleNotification é retornado quando a notificação pendente foi
	// confirmada entre a leitura e a escrita do merge.
	ErrStaleNotification = errors.New("pending notification changed concurrently")
)

// PostgresRepository fornece acesso ao armazenamento em PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository cria o repositório e inicializa o esquema do
// banco via migrações.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close fecha o pool de conexões com o banco.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromNullable(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pointColumns(p *model.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

func pointFromColumns(lat, lng *float64) *model.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &model.Point{Lat: *lat, Lng: *lng}
}

// CreateBatch persiste um novo batch com seu pool de paradas.
func (r *PostgresRepository) CreateBatch(ctx context.Context, b *model.Batch) error {
	lat, lng := pointColumns(b.Origin)
	err := r.pool.QueryRow(ctx,
		`INSERT INTO batches (id, status, origin_lat, origin_lng, stop_pool, stop_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		b.ID, b.Status, lat, lng, b.StopPool, b.StopCount,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetBatch retorna um batch pelo identificador.
func (r *PostgresRepository) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var (
		b        model.Batch
		lat, lng *float64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, status, origin_lat, origin_lng, stop_pool, route_ids, stop_count, created_at
		 FROM batches WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Status, &lat, &lng, &b.StopPool, &b.RouteIDs, &b.StopCount, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	b.Origin = pointFromColumns(lat, lng)
	return &b, nil
}

func insertStop(ctx context.Context, tx pgx.Tx, routeID string, position int, s model.Stop) error {
	var lat, lng *float64
	if s.Coords != nil {
		lat, lng = &s.Coords.Lat, &s.Coords.Lng
	}
	outcome := s.Outcome
	if outcome == "" {
		outcome = model.StopOutcomePending
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO stops
		   (id, route_id, order_id, position, address, city, neighborhood, postal,
		    lat, lng, phone, notes, time_window, outcome, attempted, removed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false)
		 ON CONFLICT (id) DO UPDATE SET
		   position = EXCLUDED.position,
		   address = EXCLUDED.address,
		   city = EXCLUDED.city,
		   neighborhood = EXCLUDED.neighborhood,
		   postal = EXCLUDED.postal,
		   lat = EXCLUDED.lat,
		   lng = EXCLUDED.lng,
		   phone = EXCLUDED.phone,
		   notes = EXCLUDED.notes,
		   time_window = EXCLUDED.time_window,
		   removed = false`,
		s.ID, routeID, nullable(s.OrderID), position, s.Address, s.City, s.Neighborhood,
		s.Postal, lat, lng, s.Phone, s.Notes, s.TimeWindow, string(outcome), s.Attempted,
	)
	if err != nil {
		return fmt.Errorf("insert stop %s: %w", s.ID, err)
	}
	return nil
}

// CreateRoute persiste uma nova rota com suas paradas e a registra no
// batch de origem, quando houver.
func (r *PostgresRepository) CreateRoute(ctx context.Context, route *model.Route) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status := route.Status
	if status == "" {
		status = model.RouteStatusDraft
	}

	lat, lng := pointColumns(route.Origin)
	err = tx.QueryRow(ctx,
		`INSERT INTO routes (id, batch_id, driver_id, status, origin_lat, origin_lng, color_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, revision`,
		route.ID, nullable(route.BatchID), nullable(route.DriverID), string(status), lat, lng, route.ColorTag,
	).Scan(&route.CreatedAt, &route.Revision)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	route.Status = status

	for i, s := range route.Stops {
		if err := insertStop(ctx, tx, route.ID, i, s); err != nil {
			return err
		}
	}

	if route.BatchID != "" {
		_, err = tx.Exec(ctx,
			`UPDATE batches SET route_ids = array_append(route_ids, $2) WHERE id = $1`,
			route.BatchID, route.ID,
		)
		if err != nil {
			return fmt.Errorf("register route on batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanStops(rows pgx.Rows) ([]model.Stop, error) {
	defer rows.Close()

	var stops []model.Stop
	for rows.Next() {
		var (
			s        model.Stop
			orderID  *string
			lat, lng *float64
			outcome  string
		)
		err := rows.Scan(&s.ID, &orderID, &s.Address, &s.City, &s.Neighborhood, &s.Postal,
			&lat, &lng, &s.Phone, &s.Notes, &s.TimeWindow, &outcome, &s.Attempted, &s.Removed)
		if err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		s.OrderID = fromNullable(orderID)
		s.Coords = pointFromColumns(lat, lng)
		s.Outcome = model.StopOutcome(outcome)
		stops = append(stops, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return stops, nil
}

const stopColumns = `id, order_id, address, city, neighborhood, postal,
	 lat, lng, phone, notes, time_window, outcome, attempted, removed`

func loadRouteStops(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, routeID string) ([]model.Stop, error) {
	rows, err := q.Query(ctx,
		`SELECT `+stopColumns+` FROM stops WHERE route_id = $1 ORDER BY position, id`,
		routeID,
	)
	if err != nil {
		return nil, fmt.Errorf("select stops: %w", err)
	}
	return scanStops(rows)
}

func scanRoute(row pgx.Row) (*model.Route, error) {
	var (
		route             model.Route
		batchID, driverID *string
		lat, lng          *float64
		status            string
	)
	err := row.Scan(&route.ID, &batchID, &driverID, &status, &lat, &lng,
		&route.ColorTag, &route.Revision, &route.CreatedAt, &route.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, fmt.Errorf("scan route: %w", err)
	}
	route.BatchID = fromNullable(batchID)
	route.DriverID = fromNullable(driverID)
	route.Status = model.RouteStatus(status)
	route.Origin = pointFromColumns(lat, lng)
	return &route, nil
}

const routeColumns = `id, batch_id, driver_id, status, origin_lat, origin_lng,
	 color_tag, revision, created_at, completed_at`

// GetRoute retorna uma rota com todas as suas paradas, inclusive as
// removidas (tombstones), na ordem de posição.
func (r *PostgresRepository) GetRoute(ctx context.Context, id string) (*model.Route, error) {
	route, err := scanRoute(r.pool.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	route.Stops, err = loadRouteStops(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return route, nil
}

// AssignDriver atribui um motorista a uma rota em rascunho e a marca
// como despachada.
func (r *PostgresRepository) AssignDriver(ctx context.Context, routeID, driverID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE routes SET driver_id = $2, status = $3
		 WHERE id = $1 AND status = $4`,
		routeID, driverID, string(model.RouteStatusDispatched), string(model.RouteStatusDraft),
	)
	if err != nil {
		return fmt.Errorf("assign driver: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Ou a rota não existe, ou já saiu do rascunho.
		if _, err := r.GetRoute(ctx, routeID); err != nil {
			return err
		}
		return ErrRouteNotDraft
	}
	return nil
}

// UpdateRouteStatus altera o status do ciclo de vida da rota, gravando
// o instante de conclusão quando aplicável.
func (r *PostgresRepository) UpdateRouteStatus(ctx context.Context, routeID string, status model.RouteStatus) error {
	var completedAt *time.Time
	if status == model.RouteStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE routes SET status = $2, completed_at = COALESCE($3, completed_at) WHERE id = $1`,
		routeID, string(status), completedAt,
	)
	if err != nil {
		return fmt.Errorf("update route status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// ReplaceRouteStops substitui atomicamente a lista de paradas de uma
// rota: trava a rota, captura o snapshot anterior, marca como removidas
// as paradas ausentes na nova lista, grava as demais na nova ordem e
// incrementa a revisão. Retorna o snapshot anterior e a rota
// atualizada.
func (r *PostgresRepository) ReplaceRouteStops(ctx context.Context, routeID string, stops []model.Stop) (old []model.Stop, updated *model.Route, err error) {
	err = r.withRetry(ctx, func() error {
		old, updated, err = r.replaceRouteStops(ctx, routeID, stops)
		return err
	})
	return old, updated, err
}

func (r *PostgresRepository) replaceRouteStops(ctx context.Context, routeID string, stops []model.Stop) ([]model.Stop, *model.Route, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	route, err := scanRoute(tx.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE id = $1 FOR UPDATE`, routeID))
	if err != nil {
		return nil, nil, err
	}

	current, err := loadRouteStops(ctx, tx, routeID)
	if err != nil {
		return nil, nil, err
	}

	oldSnapshot := make([]model.Stop, 0, len(current))
	for _, s := range current {
		if !s.Removed {
			oldSnapshot = append(oldSnapshot, s)
		}
	}

	keep := make(map[string]struct{}, len(stops))
	incoming := make([]string, 0, len(stops))
	for _, s := range stops {
		keep[s.ID] = struct{}{}
		incoming = append(incoming, s.ID)
	}

	// O upsert abaixo nunca muda route_id: uma parada já gravada em outra
	// rota seria reescrita lá em silêncio. Rejeita antes.
	var foreign string
	err = tx.QueryRow(ctx,
		`SELECT id FROM stops WHERE id = ANY($1) AND route_id <> $2 LIMIT 1`,
		incoming, routeID,
	).Scan(&foreign)
	if err == nil {
		return nil, nil, fmt.Errorf("stop %s: %w", foreign, ErrStopOwnedByOtherRoute)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("check stop ownership: %w", err)
	}

	// Paradas fora da nova lista viram tombstones, não são apagadas.
	for _, s := range current {
		if _, kept := keep[s.ID]; kept || s.Removed {
			continue
		}
		_, err := tx.Exec(ctx, `UPDATE stops SET removed = true WHERE id = $1`, s.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("tombstone stop %s: %w", s.ID, err)
		}
	}

	for i, s := range stops {
		if err := insertStop(ctx, tx, routeID, i, s); err != nil {
			return nil, nil, err
		}
	}

	err = tx.QueryRow(ctx,
		`UPDATE routes SET revision = revision + 1, earnings_dirty = true
		 WHERE id = $1 RETURNING revision`,
		routeID,
	).Scan(&route.Revision)
	if err != nil {
		return nil, nil, fmt.Errorf("bump revision: %w", err)
	}

	route.Stops, err = loadRouteStops(ctx, tx, routeID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return oldSnapshot, route, nil
}

// SetStopOutcome registra o desfecho de entrega de uma parada e marca a
// rota para recálculo de ganhos. Retorna o identificador da rota.
func (r *PostgresRepository) SetStopOutcome(ctx context.Context, stopID string, outcome model.StopOutcome, attempted bool) (string, error) {
	var routeID string
	err := r.pool.QueryRow(ctx,
		`UPDATE stops SET outcome = $2, attempted = $3 WHERE id = $1 RETURNING route_id`,
		stopID, string(outcome), attempted,
	).Scan(&routeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrStopNotFound
		}
		return "", fmt.Errorf("set stop outcome: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE routes SET revision = revision + 1, earnings_dirty = true WHERE id = $1`,
		routeID,
	)
	if err != nil {
		return "", fmt.Errorf("mark route dirty: %w", err)
	}
	return routeID, nil
}

func scanNotification(row pgx.Row) (*model.RouteChangeNotification, error) {
	var (
		n       model.RouteChangeNotification
		changes []byte
	)
	err := row.Scan(&n.ID, &n.RouteID, &n.DriverID, &changes, &n.Acknowledged, &n.CreatedAt, &n.AcknowledgedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if err := json.Unmarshal(changes, &n.Changes); err != nil {
		return nil, fmt.Errorf("decode notification changes: %w", err)
	}
	return &n, nil
}

const notificationColumns = `id, route_id, driver_id, changes, acknowledged, created_at, acknowledged_at`

// GetNotification retorna uma notificação pelo identificador.
func (r *PostgresRepository) GetNotification(ctx context.Context, id string) (*model.RouteChangeNotification, error) {
	return scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM route_change_notifications WHERE id = $1`, id))
}

// PendingNotificationByRoute retorna a notificação não confirmada da
// rota, se existir.
func (r *PostgresRepository) PendingNotificationByRoute(ctx context.Context, routeID string) (*model.RouteChangeNotification, error) {
	return scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM route_change_notifications
		 WHERE route_id = $1 AND NOT acknowledged`,
		routeID))
}

// InsertNotification cria uma notificação pendente. A corrida com outra
// inserção concorrente para a mesma rota perde com ErrPendingExists,
// pela unicidade parcial em (route_id, acknowledged=false).
func (r *PostgresRepository) InsertNotification(ctx context.Context, n *model.RouteChangeNotification) error {
	changes, err := json.Marshal(n.Changes)
	if err != nil {
		return fmt.Errorf("encode notification changes: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO route_change_notifications (id, route_id, driver_id, changes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		n.ID, n.RouteID, n.DriverID, changes,
	).Scan(&n.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: route %s", ErrPendingExists, n.RouteID)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateNotificationChanges substitui a lista de mudanças de uma
// notificação ainda pendente (merge). Se a notificação foi confirmada
// nesse meio-tempo, retorna ErrStaleNotification para o chamador
// re-tentar o ciclo leitura-merge-escrita.
func (r *PostgresRepository) UpdateNotificationChanges(ctx context.Context, id string, changes []model.ChangeRecord) error {
	encoded, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode notification changes: %w", err)
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE route_change_notifications SET changes = $2
		 WHERE id = $1 AND NOT acknowledged`,
		id, encoded,
	)
	if err != nil {
		return fmt.Errorf("update notification changes: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrStaleNotification, id)
	}
	return nil
}

// AcknowledgeNotification marca a notificação como confirmada.
// Idempotente: a segunda confirmação preserva o primeiro carimbo e
// retorna already=true. Notificação inexistente retorna
// ErrNotificationNotFound.
func (r *PostgresRepository) AcknowledgeNotification(ctx context.Context, id string, at time.Time) (already bool, err error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE route_change_notifications
		 SET acknowledged = true, acknowledged_at = $2
		 WHERE id = $1 AND NOT acknowledged`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge notification: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return false, nil
	}

	// Nenhuma linha alterada: já confirmada ou inexistente.
	if _, err := r.GetNotification(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// UpsertEarnings recria o registro de ganhos da rota (não há patch
// incremental: o detalhamento é substituído por inteiro a cada
// recálculo).
func (r *PostgresRepository) UpsertEarnings(ctx context.Context, id string, b model.EarningsBreakdown) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO driver_earnings
		   (id, route_id, driver_id, delivery_bonuses, failed_attempt_bonuses,
		    total_earnings, computed_at, route_created_at, route_completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (route_id, driver_id) DO UPDATE SET
		   delivery_bonuses = EXCLUDED.delivery_bonuses,
		   failed_attempt_bonuses = EXCLUDED.failed_attempt_bonuses,
		   total_earnings = EXCLUDED.total_earnings,
		   computed_at = EXCLUDED.computed_at,
		   route_completed_at = EXCLUDED.route_completed_at`,
		id, b.RouteID, b.DriverID, b.DeliveryBonuses, b.FailedAttemptBonuses,
		b.TotalEarnings, b.ComputedAt, b.RouteCreatedAt, b.RouteCompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert earnings: %w", err)
	}
	return nil
}

// GetEarnings retorna o detalhamento de ganhos mais recente da rota.
func (r *PostgresRepository) GetEarnings(ctx context.Context, routeID string) (*model.EarningsBreakdown, error) {
	var b model.EarningsBreakdown
	err := r.pool.QueryRow(ctx,
		`SELECT route_id, driver_id, delivery_bonuses, failed_attempt_bonuses,
		        total_earnings, computed_at, route_created_at, route_completed_at
		 FROM driver_earnings WHERE route_id = $1
		 ORDER BY computed_at DESC LIMIT 1`,
		routeID,
	).Scan(&b.RouteID, &b.DriverID, &b.DeliveryBonuses, &b.FailedAttemptBonuses,
		&b.TotalEarnings, &b.ComputedAt, &b.RouteCreatedAt, &b.RouteCompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEarningsNotFound
		}
		return nil, fmt.Errorf("get earnings: %w", err)
	}
	return &b, nil
}

// DirtyRoute identifica uma rota aguardando recálculo de ganhos.
type DirtyRoute struct {
	ID       string
	Revision int64
}

// DirtyRoutes retorna rotas marcadas para recálculo de ganhos, com a
// revisão corrente para o desmarque condicional.
func (r *PostgresRepository) DirtyRoutes(ctx context.Context, limit int) ([]DirtyRoute, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, revision FROM routes
		 WHERE earnings_dirty AND driver_id IS NOT NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select dirty routes: %w", err)
	}
	defer rows.Close()

	var res []DirtyRoute
	for rows.Next() {
		var d DirtyRoute
		if err := rows.Scan(&d.ID, &d.Revision); err != nil {
			return nil, fmt.Errorf("scan dirty route: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ClearEarningsDirty desmarca a rota para recálculo, apenas se nenhuma
// mutação ocorreu desde a revisão lida (senão o próximo ciclo recalcula
// de novo, o que é seguro por idempotência).
func (r *PostgresRepository) ClearEarningsDirty(ctx context.Context, routeID string, revision int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE routes SET earnings_dirty = false WHERE id = $1 AND revision = $2`,
		routeID, revision,
	)
	if err != nil {
		return fmt.Errorf("clear earnings dirty: %w", err)
	}
	return nil
}

// CreateOrder persiste um pedido de origem.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (id, batch_id, route_id, status, customer, address, city)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		o.ID, nullable(o.BatchID), nullable(o.RouteID), string(o.Status), o.Customer, o.Address, o.City,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// LoadBatchGraph carrega o grafo completo de um batch: o próprio batch,
// suas rotas com paradas e os pedidos vinculados. Usado pela
// verificação de consistência.
func (r *PostgresRepository) LoadBatchGraph(ctx context.Context, batchID string) (*model.Batch, []model.Route, []model.Order, error) {
	batch, err := r.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, nil, err
	}

	routeRows, err := r.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE batch_id = $1 ORDER BY created_at, id`,
		batchID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("select batch routes: %w", err)
	}

	var routes []model.Route
	for routeRows.Next() {
		route, err := scanRoute(routeRows)
		if err != nil {
			routeRows.Close()
			return nil, nil, nil, err
		}
		routes = append(routes, *route)
	}
	if err := routeRows.Err(); err != nil {
		routeRows.Close()
		return nil, nil, nil, fmt.Errorf("rows error: %w", err)
	}
	routeRows.Close()

	for i := range routes {
		routes[i].Stops, err = loadRouteStops(ctx, r.pool, routes[i].ID)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	orderRows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, route_id, status, customer, address, city, created_at
		 FROM orders WHERE batch_id = $1 ORDER BY created_at, id`,
		batchID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("select batch orders: %w", err)
	}
	defer orderRows.Close()

	var orders []model.Order
	for orderRows.Next() {
		var o statusOrder
		if err := orderRows.Scan(&o.ID, &o.BatchID, &o.RouteID, &o.Status, &o.Customer, &o.Address, &o.City, &o.CreatedAt); err != nil {
			return nil, nil, nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o.toModel())
	}
	if err := orderRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("rows error: %w", err)
	}

	return batch, routes, orders, nil
}

type statusOrder struct {
	ID        string
	BatchID   *string
	RouteID   *string
	Status    string
	Customer  string
	Address   string
	City      string
	CreatedAt time.Time
}

func (o statusOrder) toModel() model.Order {
	return model.Order{
		ID:        o.ID,
		BatchID:   fromNullable(o.BatchID),
		RouteID:   fromNullable(o.RouteID),
		Status:    model.OrderStatus(o.Status),
		Customer:  o.Customer,
		Address:   o.Address,
		City:      o.City,
		CreatedAt: o.CreatedAt,
	}
}

// RemoveStopFromRoute marca a parada como removida (tombstone) e
// incrementa a revisão da rota. Reparo explícito de referência
// duplicada ou pendente.
func (r *PostgresRepository) RemoveStopFromRoute(ctx context.Context, routeID, stopID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE stops SET removed = true WHERE id = $1 AND route_id = $2`,
		stopID, routeID,
	)
	if err != nil {
		return fmt.Errorf("remove stop from route: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStopNotFound
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE routes SET revision = revision + 1, earnings_dirty = true WHERE id = $1`,
		routeID,
	)
	if err != nil {
		return fmt.Errorf("bump route revision: %w", err)
	}
	return nil
}

// RemoveFromPool retira do pool do batch uma referência de parada
// pendente (reparo explícito).
func (r *PostgresRepository) RemoveFromPool(ctx context.Context, batchID, stopID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE batches SET stop_pool = array_remove(stop_pool, $2) WHERE id = $1`,
		batchID, stopID,
	)
	if err != nil {
		return fmt.Errorf("remove from pool: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// ClearDraftDriver remove o motorista de uma rota que ainda está em
// rascunho (reparo explícito da inconsistência motorista+rascunho).
func (r *PostgresRepository) ClearDraftDriver(ctx context.Context, routeID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE routes SET driver_id = NULL
		 WHERE id = $1 AND status = $2`,
		routeID, string(model.RouteStatusDraft),
	)
	if err != nil {
		return fmt.Errorf("clear draft driver: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// UnlinkOrder desvincula um pedido perdido de batch/rota, devolvendo-o
// ao estado pendente (reparo explícito).
func (r *PostgresRepository) UnlinkOrder(ctx context.Context, orderID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders SET batch_id = NULL, route_id = NULL, status = $2 WHERE id = $1`,
		orderID, string(model.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("unlink order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// RefreshBatchStats recalcula a contagem de paradas do batch a partir
// das paradas vivas de suas rotas (reparo explícito).
func (r *PostgresRepository) RefreshBatchStats(ctx context.Context, batchID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE batches SET stop_count = (
		   SELECT COUNT(*) FROM stops s
		   JOIN routes rt ON rt.id = s.route_id
		   WHERE rt.batch_id = $1 AND NOT s.removed
		 ) WHERE id = $1`,
		batchID,
	)
	if err != nil {
		return fmt.Errorf("refresh batch stats: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}
