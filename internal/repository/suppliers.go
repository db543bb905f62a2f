package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/invoice-pipeline/db/ent/schema"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const suppliersTable = "suppliers"

var supplierColumns = []string{"id", "name", "inn", "kpp", "category", "phone", "email", "legal_address"}

// SupplierRepository reads the supplier directory. Writes exist only for
// migrations, seeding and tests.
type SupplierRepository interface {
	ListSuppliers(ctx context.Context) ([]entity.Supplier, error)
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, s entity.Supplier) (int64, error)
	Migrate(ctx context.Context) error
}

type supplierRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewSupplierRepository(db *DB, logger *slog.Logger) SupplierRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &supplierRepository{drv: db.Driver, logger: logger}
}

// ListSuppliers returns every supplier in id order, which is the load order
// used to break ties between duplicates.
func (r *supplierRepository) ListSuppliers(ctx context.Context) ([]entity.Supplier, error) {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Select(supplierColumns...).
		From(entsql.Table(suppliersTable)).
		OrderBy("id").
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list suppliers", "error", err)
		return nil, common.WrapError(fmt.Errorf("%w: %w", common.ErrDatabase, err), "list suppliers")
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Supplier
	for rows.Next() {
		var (
			s                                          entity.Supplier
			inn, kpp, category, phone, email, address sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &inn, &kpp, &category, &phone, &email, &address); err != nil {
			return nil, common.WrapError(err, "scan supplier")
		}
		s.INN, s.KPP, s.Category = nullable(inn), nullable(kpp), nullable(category)
		s.Phone, s.Email, s.LegalAddress = nullable(phone), nullable(email), nullable(address)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate suppliers")
	}
	r.logger.Debug("suppliers listed", "count", len(out))
	return out, nil
}

func (r *supplierRepository) Count(ctx context.Context) (int, error) {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Select(entsql.Count("*")).
		From(entsql.Table(suppliersTable)).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, common.WrapError(fmt.Errorf("%w: %w", common.ErrDatabase, err), "count suppliers")
	}
	defer func() { _ = rows.Close() }()
	n, err := entsql.ScanInt(rows)
	if err != nil {
		return 0, common.WrapError(err, "scan supplier count")
	}
	return n, nil
}

// Insert validates s against the schema and stores it. A zero ID lets the
// database assign one.
func (r *supplierRepository) Insert(ctx context.Context, s entity.Supplier) (int64, error) {
	values := map[string]*string{
		"name": &s.Name, "inn": s.INN, "kpp": s.KPP, "category": s.Category,
		"phone": s.Phone, "email": s.Email, "legal_address": s.LegalAddress,
	}
	if err := validateSupplier(values); err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(supplierColumns))
	vals := make([]any, 0, len(supplierColumns))
	if s.ID > 0 {
		cols, vals = append(cols, "id"), append(vals, s.ID)
	}
	for _, c := range supplierColumns[1:] {
		cols = append(cols, c)
		if v := values[c]; v != nil {
			vals = append(vals, *v)
		} else {
			vals = append(vals, nil)
		}
	}

	builder := entsql.Dialect(r.drv.Dialect()).Insert(suppliersTable).Columns(cols...).Values(vals...)
	if r.drv.Dialect() == dialect.Postgres {
		builder = builder.Returning("id")
		query, args := builder.Query()
		var rows entsql.Rows
		if err := r.drv.Query(ctx, query, args, &rows); err != nil {
			return 0, common.WrapError(fmt.Errorf("%w: %w", common.ErrDatabase, err), "insert supplier")
		}
		defer func() { _ = rows.Close() }()
		id, err := entsql.ScanInt64(rows)
		if err != nil {
			return 0, common.WrapError(err, "scan supplier id")
		}
		return id, nil
	}

	query, args := builder.Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, common.WrapError(fmt.Errorf("%w: %w", common.ErrDatabase, err), "insert supplier")
	}
	return res.LastInsertId()
}

// Migrate creates the suppliers table and its indexes from the ent schema if
// they do not exist.
func (r *supplierRepository) Migrate(ctx context.Context) error {
	d := r.drv.Dialect()
	table := entsql.Dialect(d).CreateTable(suppliersTable).IfNotExists()
	for _, f := range (schema.Supplier{}).Fields() {
		desc := f.Descriptor()
		col := entsql.Column(desc.Name).Type(columnType(d, desc))
		if !desc.Optional {
			col.Attr("NOT NULL")
		}
		table.Column(col)
	}
	table.PrimaryKey("id")

	stmts := []entsql.Querier{table}
	for _, idx := range (schema.Supplier{}).Indexes() {
		cols := idx.Descriptor().Fields
		name := suppliersTable + "_" + cols[0]
		stmts = append(stmts, entsql.Dialect(d).CreateIndex(name).IfNotExists().Table(suppliersTable).Columns(cols...))
	}
	for _, stmt := range stmts {
		query, args := stmt.Query()
		if err := r.drv.Exec(ctx, query, args, nil); err != nil {
			return common.WrapError(fmt.Errorf("%w: %w", common.ErrDatabase, err), "migrate suppliers")
		}
	}
	r.logger.Info("supplier table ready", "dialect", d)
	return nil
}

func columnType(d string, desc *field.Descriptor) string {
	if t, ok := desc.SchemaType[d]; ok {
		return t
	}
	switch desc.Info.Type {
	case field.TypeInt64:
		if d == dialect.Postgres && desc.Name == "id" {
			return "bigserial"
		}
		if d == dialect.SQLite {
			return "INTEGER"
		}
		return "bigint"
	}
	return "text"
}

// validateSupplier runs the schema's string validators on the supplied values.
func validateSupplier(values map[string]*string) error {
	for _, f := range (schema.Supplier{}).Fields() {
		desc := f.Descriptor()
		v := values[desc.Name]
		if v == nil {
			continue
		}
		for _, fn := range desc.Validators {
			check, ok := fn.(func(string) error)
			if !ok {
				continue
			}
			if err := check(*v); err != nil {
				return common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("supplier %s: %v", desc.Name, err), common.ErrValidation)
			}
		}
	}
	return nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}
