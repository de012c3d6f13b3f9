package persister

import (
	"fmt"
	"strconv"
)

// Dialect captures the SQL differences between supported stores.
type Dialect struct {
	// Name identifies the dialect ("sqlite", "postgres" or "mysql").
	Name string

	// Numbered selects $1, $2, ... placeholders instead of ?.
	Numbered bool

	// Returning makes identity inserts return the generated key with
	// RETURNING instead of reading LastInsertId.
	Returning bool

	// AdvanceSequenceSQL, when set, is executed before NextSequenceSQL on the
	// same transaction.
	AdvanceSequenceSQL string

	// NextSequenceSQL fetches the next value of the shared identifier sequence.
	NextSequenceSQL string

	// EmptyValues is the VALUES clause of an insert with no columns.
	// Default: DEFAULT VALUES.
	EmptyValues string
}

// SequenceName is the store-side counter used by the sequence strategy.
const SequenceName = "orm_sequence"

// SQLite is the dialect for the sqlite3 (mattn) and sqlite (modernc) drivers.
// The sequence is emulated by a single-row table created by store.Open.
var SQLite = Dialect{
	Name:            "sqlite",
	NextSequenceSQL: "UPDATE " + SequenceName + " SET value = value + 1 RETURNING value",
}

// Postgres is the dialect for the pgx driver.
var Postgres = Dialect{
	Name:            "postgres",
	Numbered:        true,
	Returning:       true,
	NextSequenceSQL: "SELECT nextval('" + SequenceName + "')",
}

// MySQL is the dialect for the go-sql-driver/mysql driver. MySQL has no
// sequences: the single-row orm_sequence table is advanced through
// LAST_INSERT_ID(expr), which keeps the value private to the connection.
var MySQL = Dialect{
	Name:               "mysql",
	AdvanceSequenceSQL: "UPDATE " + SequenceName + " SET value = LAST_INSERT_ID(value + 1)",
	NextSequenceSQL:    "SELECT LAST_INSERT_ID()",
	EmptyValues:        "() VALUES ()",
}

// ForDriver returns the dialect matching a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("no dialect for driver %q", driver)
	}
}

// SequenceSQL renders the statements that fetch one sequence value.
func (d Dialect) SequenceSQL() string {
	if d.AdvanceSequenceSQL == "" {
		return d.NextSequenceSQL
	}
	return d.AdvanceSequenceSQL + "; " + d.NextSequenceSQL
}

func (d Dialect) emptyValues() string {
	if d.EmptyValues == "" {
		return "DEFAULT VALUES"
	}
	return d.EmptyValues
}

// placeholders returns a generator producing the dialect's positional
// parameter markers in order.
func (d Dialect) placeholders() func() string {
	n := 0
	return func() string {
		n++
		if d.Numbered {
			return "$" + strconv.Itoa(n)
		}
		return "?"
	}
}
