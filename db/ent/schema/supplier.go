package schema

import (
	"regexp"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/joseph-ayodele/invoice-pipeline/db/ent/schema/utils"
)

var (
	innPattern = regexp.MustCompile(`^(\d{10}|\d{12})$`)
	kppPattern = regexp.MustCompile(`^\d{9}$`)
)

// Supplier maps to the public.suppliers directory table. The pipeline only reads it.
type Supplier struct{ ent.Schema }

func (Supplier) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "suppliers"},
	}
}

func (Supplier) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").Positive().Immutable(),
		field.String("name").NotEmpty().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.String("inn").Optional().Nillable().Match(innPattern).
			SchemaType(map[string]string{dialect.Postgres: "varchar(12)"}),
		field.String("kpp").Optional().Nillable().Match(kppPattern).
			SchemaType(map[string]string{dialect.Postgres: "char(9)"}),
		field.String("category").Optional().Nillable().
			Validate(utils.CategoryValidator()),
		field.String("phone").Optional().Nillable(),
		field.String("email").Optional().Nillable(),
		field.String("legal_address").Optional().Nillable(),
	}
}

func (Supplier) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("inn"),
		index.Fields("name"),
	}
}
