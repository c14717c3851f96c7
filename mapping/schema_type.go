package mapping

// SchemaType is the neutral, dialect-independent column type. Dialects
// translate a SchemaType into their native DDL/parameter type.
type SchemaType string

const (
	Binary   SchemaType = "binary"
	Boolean  SchemaType = "boolean"
	Date     SchemaType = "date"
	DateTime SchemaType = "datetime"
	Timestamp SchemaType = "timestamp"
	Decimal  SchemaType = "decimal"
	Float    SchemaType = "float"
	Integer  SchemaType = "integer"
	String   SchemaType = "string"
	Uuid     SchemaType = "uuid"
)
