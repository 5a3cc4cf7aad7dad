package library

import (
	"errors"
	"fmt"
)

// Validation failures. The ledger leaves both entity collections untouched
// and nothing is persisted; the caller reports the message and carries on.
var (
	ErrBookNotFound    = errors.New("no book with that ISBN")
	ErrUserNotFound    = errors.New("no user with that ID")
	ErrDuplicateISBN   = errors.New("a book with that ISBN already exists")
	ErrDuplicateUserID = errors.New("that user ID is already registered")
	ErrAlreadyBorrowed = errors.New("book is already borrowed")
	ErrLoanNotFound    = errors.New("book was not borrowed by this user")
)

// PersistError reports a failed state write. The in-memory mutation that
// triggered the write stays applied; durable state catches up on the next
// successful save.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: saving library state: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
