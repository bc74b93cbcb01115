package postgres

import (
	"fmt"
	"strings"
)

// queryBuilder assembles SQL with `$?` placeholders that are numbered as
// chunks are added:
//
//	qb.Add("WHERE a = $? AND b = $?", 1, 2)  // WHERE a = $1 AND b = $2
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (qb *queryBuilder) Add(sql string, args ...any) {
	numPlaceholders := strings.Count(sql, "$?")
	if numPlaceholders != len(args) {
		panic(fmt.Errorf("cannot add chunk to query; expected %d arguments but got %d", numPlaceholders, len(args)))
	}

	for _, arg := range args {
		sql = strings.Replace(sql, "$?", fmt.Sprintf("$%d", len(qb.args)+1), 1)
		qb.args = append(qb.args, arg)
	}

	qb.sql.WriteString(sql)
	qb.sql.WriteString("\n")
}

func (qb *queryBuilder) String() string {
	return qb.sql.String()
}

func (qb *queryBuilder) Args() []any {
	return qb.args
}
