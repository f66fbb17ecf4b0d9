package booklist

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// Absolute positions are zero-based; navigation row ids start at 1.
func rowID(absPos int64) int64 { return absPos + 1 }

// ToggleExpandNode flips the expanded state of the row at absPos and shows or
// hides everything under it. A position that no longer exists is ignored.
func (b *Builder) ToggleExpandNode(ctx context.Context, absPos int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	err := b.atomic(ctx, "toggle", func() error {
		return b.toggle(ctx, rowID(absPos))
	})
	return b.ignoreStale(err, absPos)
}

// toggle flips row id. The rows it governs are those after it up to the next
// row at the same or a shallower level; sorted, level-ordered insertion
// guarantees they are exactly its descendants.
func (b *Builder) toggle(ctx context.Context, id int64) error {
	var level, expanded, visible int
	if err := b.queryRow(ctx, stmtRowState, []any{&level, &expanded, &visible}, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleRow
		}
		return err
	}
	next := 1 - expanded

	var end int64
	if err := b.queryRow(ctx, stmtIntervalEnd, []any{&end}, id, level); err != nil {
		return err
	}
	if err := b.exec(ctx, stmtSetInterval, next, next, id, end, level); err != nil {
		return err
	}
	if err := b.exec(ctx, stmtSetExpanded, next, id); err != nil {
		return err
	}
	return b.persistNode(ctx, id)
}

// persistNode recomputes the saved state of the level-1 node that id belongs
// to from that node's own expanded flag.
func (b *Builder) persistNode(ctx context.Context, id int64) error {
	if b.Levels() == 0 {
		return nil
	}
	if err := b.exec(ctx, stmtForgetNode, id); err != nil {
		return err
	}
	return b.exec(ctx, stmtRememberNode, id)
}

// ExpandAll expands or collapses every node and saves that state for every
// level-1 node of the list's top kind.
func (b *Builder) ExpandAll(ctx context.Context, expand bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	return b.atomic(ctx, "expand_all", func() error {
		update := stmtCollapseAll
		if expand {
			update = stmtExpandAll
		}
		if err := b.exec(ctx, update); err != nil {
			return err
		}
		if b.Levels() == 0 {
			return nil
		}
		if err := b.exec(ctx, stmtForgetKind); err != nil {
			return err
		}
		if expand {
			return b.exec(ctx, stmtRememberAll)
		}
		return nil
	})
}

// EnsureAbsolutePositionVisible expands whichever ancestors of the row at
// absPos are collapsed, outermost first.
func (b *Builder) EnsureAbsolutePositionVisible(ctx context.Context, absPos int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return err
	}
	err := b.atomic(ctx, "ensure_visible", func() error {
		id := rowID(absPos)
		var level, expanded, visible int
		if err := b.queryRow(ctx, stmtRowState, []any{&level, &expanded, &visible}, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStaleRow
			}
			return err
		}
		if visible == 1 {
			return nil
		}
		for l := 1; l < level; l++ {
			var anc int64
			var ancLevel, ancExpanded int
			err := b.queryRow(ctx, stmtAncestor, []any{&anc, &ancLevel, &ancExpanded}, id, l)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			// A shallower row first means this level's header was suppressed.
			if ancLevel != l || ancExpanded == 1 {
				continue
			}
			if err := b.toggle(ctx, anc); err != nil {
				return err
			}
		}
		return nil
	})
	return b.ignoreStale(err, absPos)
}

func (b *Builder) ignoreStale(err error, absPos int64) error {
	if errors.Is(err, ErrStaleRow) {
		b.log.Debug("ignoring stale row", zap.Int64("position", absPos))
		return nil
	}
	return err
}
