package booklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// stmtPurpose names a cached statement. Every purpose has exactly one query
// text per build, rendered by builder.query.
type stmtPurpose int

const (
	stmtCountVisible stmtPurpose = iota
	stmtCountBooks
	stmtCountUniqueBooks
	stmtPage
	stmtRowState
	stmtIntervalEnd
	stmtSetInterval
	stmtSetExpanded
	stmtForgetNode
	stmtRememberNode
	stmtAncestor
	stmtVisibleBefore
	stmtBookRows
	stmtExpandAll
	stmtCollapseAll
	stmtForgetKind
	stmtRememberAll
)

var stmtNames = [...]string{
	stmtCountVisible:     "count visible",
	stmtCountBooks:       "count books",
	stmtCountUniqueBooks: "count unique books",
	stmtPage:             "page",
	stmtRowState:         "row state",
	stmtIntervalEnd:      "interval end",
	stmtSetInterval:      "set interval",
	stmtSetExpanded:      "set expanded",
	stmtForgetNode:       "forget node",
	stmtRememberNode:     "remember node",
	stmtAncestor:         "ancestor",
	stmtVisibleBefore:    "visible before",
	stmtBookRows:         "book rows",
	stmtExpandAll:        "expand all",
	stmtCollapseAll:      "collapse all",
	stmtForgetKind:       "forget kind",
	stmtRememberAll:      "remember all",
}

func (p stmtPurpose) String() string {
	if int(p) < len(stmtNames) {
		return stmtNames[p]
	}
	return fmt.Sprintf("stmt(%d)", int(p))
}

// statements caches prepared statements on the builder's pinned connection.
// The cache is emptied on every build, since table shapes and the leaf level
// may change, and on close.
type statements struct {
	conn  *sql.Conn
	stmts map[stmtPurpose]*sql.Stmt
}

func newStatements(conn *sql.Conn) *statements {
	return &statements{conn: conn, stmts: make(map[stmtPurpose]*sql.Stmt)}
}

// get returns the statement for p, preparing render() on first use.
func (s *statements) get(ctx context.Context, p stmtPurpose, render func(stmtPurpose) string) (*sql.Stmt, error) {
	if st, ok := s.stmts[p]; ok {
		return st, nil
	}
	st, err := s.conn.PrepareContext(ctx, render(p))
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", p, err)
	}
	s.stmts[p] = st
	return st, nil
}

// reset closes every cached statement.
func (s *statements) reset() error {
	var errs []error
	for p, st := range s.stmts {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p, err))
		}
		delete(s.stmts, p)
	}
	return errors.Join(errs...)
}
