package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"postgres foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a' for key 'users.email'"}, true},
		{"mysql foreign key violation", &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}, false},
		{"sqlite unique text", errors.New("UNIQUE constraint failed: users.email"), true},
		{"wrapped sqlite unique text", fmt.Errorf("create user: %w", errors.New("UNIQUE constraint failed: users.email")), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsUniqueViolation(tc.err))
		})
	}
}
