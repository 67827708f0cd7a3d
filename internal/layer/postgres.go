package layer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"listing-map/internal/logger"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// PGStore PostgreSQL 图层存储：几何以 WKB 写入 BYTEA，编辑快照存放在 _map_layer_edits
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

func AttachDB(db *sql.DB) *PGStore { return &PGStore{db: db, now: time.Now} }

func encodeGeom(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, ErrNoGeometry
	}
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadGeometry, err)
	}
	return b, nil
}

func decodeGeom(b []byte) (orb.Geometry, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadGeometry, err)
	}
	return g, nil
}

func (s *PGStore) insert(ctx context.Context, l *Layer, src Source) (string, error) {
	c := *l
	if err := prepare(&c, src, uuid.NewString(), s.now()); err != nil {
		return "", err
	}
	gb, err := encodeGeom(c.Geometry)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO _map_layers(id, name, geom, radius, min_lon, min_lat, max_lon, max_lat, visible, opacity, source, created_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.Name, gb, c.Radius,
		c.Bound.Min.Lon(), c.Bound.Min.Lat(), c.Bound.Max.Lon(), c.Bound.Max.Lat(),
		c.Visible, c.Opacity, string(c.Source), c.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	logger.Component("layer").Debug("layer_added", "id", c.ID, "source", src, "store", "postgres")
	return c.ID, nil
}

func (s *PGStore) AddLayer(ctx context.Context, l *Layer) (string, error) {
	return s.insert(ctx, l, FromUpload)
}

func (s *PGStore) AddConstructedLayer(ctx context.Context, l *Layer) (string, error) {
	return s.insert(ctx, l, FromDrawing)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLayer(r rowScanner) (*Layer, error) {
	var l Layer
	var gb []byte
	var src string
	var minLon, minLat, maxLon, maxLat float64
	err := r.Scan(&l.ID, &l.Name, &gb, &l.Radius, &minLon, &minLat, &maxLon, &maxLat, &l.Visible, &l.Opacity, &src, &l.Editing, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g, err := decodeGeom(gb)
	if err != nil {
		return nil, err
	}
	l.Geometry = g
	l.Source = Source(src)
	l.Bound = orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
	return &l, nil
}

const selectLayer = `SELECT id, name, geom, radius, min_lon, min_lat, max_lon, max_lat, visible, opacity, source, editing, created_at FROM _map_layers WHERE id=$1`

func (s *PGStore) Get(ctx context.Context, id string) (*Layer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanLayer(s.db.QueryRowContext(ctx, selectLayer, id))
}

func (s *PGStore) write(ctx context.Context, tx *sql.Tx, l *Layer) error {
	gb, err := encodeGeom(l.Geometry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE _map_layers SET name=$2, geom=$3, radius=$4, min_lon=$5, min_lat=$6, max_lon=$7, max_lat=$8,
        visible=$9, opacity=$10, editing=$11, updated_at=now() WHERE id=$1`,
		l.ID, l.Name, gb, l.Radius,
		l.Bound.Min.Lon(), l.Bound.Min.Lat(), l.Bound.Max.Lon(), l.Bound.Max.Lat(),
		l.Visible, l.Opacity, l.Editing,
	)
	return err
}

// UpdateLayer 读-改-写放在同一事务内，行锁避免并发覆盖
func (s *PGStore) UpdateLayer(ctx context.Context, id string, p Patch) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, l *Layer) error {
		apply(l, p)
		return s.write(ctx, tx, l)
	})
}

func (s *PGStore) RemoveLayer(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM _map_layers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) StartEditing(ctx context.Context, id string) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, l *Layer) error {
		if l.Editing {
			return nil
		}
		gb, err := encodeGeom(l.Geometry)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _map_layer_edits(layer_id, name, geom, radius, visible, opacity)
            VALUES($1,$2,$3,$4,$5,$6)
            ON CONFLICT (layer_id) DO NOTHING`, l.ID, l.Name, gb, l.Radius, l.Visible, l.Opacity); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE _map_layers SET editing=TRUE, updated_at=now() WHERE id=$1`, l.ID)
		return err
	})
}

func (s *PGStore) StopEditing(ctx context.Context, id string, commit bool) error {
	return s.inTx(ctx, id, func(tx *sql.Tx, l *Layer) error {
		if !l.Editing {
			return ErrNotEditing
		}
		if !commit {
			var gb []byte
			row := tx.QueryRowContext(ctx, `SELECT name, geom, radius, visible, opacity FROM _map_layer_edits WHERE layer_id=$1`, l.ID)
			if err := row.Scan(&l.Name, &gb, &l.Radius, &l.Visible, &l.Opacity); err == nil {
				g, err := decodeGeom(gb)
				if err != nil {
					return err
				}
				l.Geometry = g
				l.Bound = BoundOf(g, l.Radius)
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		l.Editing = false
		if err := s.write(ctx, tx, l); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM _map_layer_edits WHERE layer_id=$1`, l.ID)
		return err
	})
}

// inTx 锁定图层行后执行 fn，fn 返回错误时回滚
func (s *PGStore) inTx(ctx context.Context, id string, fn func(tx *sql.Tx, l *Layer) error) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	l, err := scanLayer(tx.QueryRowContext(ctx, selectLayer+" FOR UPDATE", id))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx, l); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
