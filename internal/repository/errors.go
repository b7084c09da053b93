// Package repository holds the MySQL implementations of the booking core's
// storage ports together with the sentinel errors shared by every
// repository.  Higher layers compare against these values with errors.Is
// to distinguish a missing row from a uniqueness clash.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state: a duplicate unique key (for example a second PENDING
// order for the same user and showtime) or a conditional update that
// matched no row.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
    var me *mysql.MySQLError
    if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
        return ErrConflict
    }
    return err
}
