package entity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormkit/internal/orm/hooks"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// Save writes pending changes: an INSERT for a new entity, an UPDATE of the
// changed columns otherwise. A persisted entity without changes issues no
// statement. Unsaved one-to-one targets are saved first so their keys can
// be stored. A target that is itself mid-save (two new entities pointing at
// each other) gets its key written by a follow-up UPDATE once it exists.
func (e *Entity) Save(ctx context.Context) error {
	if e.md.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.md.Name())
	}
	if !e.Dirty() {
		return nil
	}

	e.saving = true
	defer func() {
		e.saving = false
		e.afterWrite = nil
	}()

	creating := e.IsNew()
	before, after := hooks.BeforeUpdate, hooks.AfterUpdate
	if creating {
		before, after = hooks.BeforeCreate, hooks.AfterCreate
	}
	for _, kind := range []hooks.Kind{hooks.BeforeSave, before} {
		if err := e.session.runHooks(ctx, kind, e); err != nil {
			return err
		}
	}

	if err := e.saveRelated(ctx); err != nil {
		return err
	}

	var err error
	if creating {
		err = e.insert(ctx)
	} else {
		err = e.update(ctx)
	}
	if err != nil {
		return err
	}

	pending := e.afterWrite
	e.afterWrite = nil
	for _, fn := range pending {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	for _, kind := range []hooks.Kind{after, hooks.AfterSave} {
		if err := e.session.runHooks(ctx, kind, e); err != nil {
			return err
		}
	}
	return nil
}

// saveRelated saves unsaved one-to-one targets and stores their keys
func (e *Entity) saveRelated(ctx context.Context) error {
	for _, rel := range e.md.Relations() {
		if rel.IsCollection() {
			continue
		}
		target := e.related[rel.Name()]
		if target == nil || !target.IsNew() {
			continue
		}
		if target.saving {
			e.deferKey(target, rel)
			continue
		}
		if err := target.Save(ctx); err != nil {
			return fmt.Errorf("save %s.%s: %w", e.md.Name(), rel.Name(), err)
		}
		v, _ := target.state.Get(rel.BindingKey())
		e.state.Set(rel.ForeignKey(), v)
	}
	return nil
}

// deferKey queues writing target's key into e once target has been written.
// target is further up the current Save stack.
func (e *Entity) deferKey(target *Entity, rel *schema.Relation) {
	target.afterWrite = append(target.afterWrite, func(ctx context.Context) error {
		if e.related[rel.Name()] != target {
			return nil
		}
		v, _ := target.state.Get(rel.BindingKey())
		e.state.Set(rel.ForeignKey(), v)
		if err := e.Save(ctx); err != nil {
			return fmt.Errorf("save %s.%s: %w", e.md.Name(), rel.Name(), err)
		}
		return nil
	})
}

func (e *Entity) insert(ctx context.Context) error {
	pk := e.md.PrimaryKey()
	if key, _ := e.state.Get(pk); key == nil && e.md.GeneratesKey() {
		e.state.Set(pk, e.session.newKey())
	}
	if e.md.Timestamps() {
		now := e.session.now()
		e.state.Set(schema.CreatedAtColumn, now)
		e.state.Set(schema.UpdatedAtColumn, now)
	}

	values := e.state.Snapshot()
	ins := statement.NewInsert(e.md.Table())
	for _, col := range e.md.Columns() {
		v, ok := values[col.Name]
		if !ok || (col.Name == pk && v == nil) {
			continue
		}
		ins.Set(col.Name, v, col.Type)
	}
	if values[pk] == nil {
		ins.Returning(pk)
	}

	res, err := e.session.executor(ctx).Exec(ctx, ins)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.md.Name(), err)
	}

	produced := map[string]interface{}{}
	for _, col := range e.md.Columns() {
		if _, ok := values[col.Name]; !ok {
			produced[col.Name] = nil
		}
	}
	if values[pk] == nil {
		if res.GeneratedKey == nil {
			return fmt.Errorf("insert %s: database returned no key", e.md.Name())
		}
		key, err := e.md.Cast(pk, res.GeneratedKey)
		if err != nil {
			return err
		}
		produced[pk] = key
	}
	e.state.Commit(produced)

	e.session.logger.Debug("entity inserted", zap.String("entity", e.md.Name()), zap.Any("key", e.Key()))
	return nil
}

func (e *Entity) update(ctx context.Context) error {
	upd := statement.NewUpdate(e.md.Table())
	produced := map[string]interface{}{}

	changes := e.state.Changes()
	touched := false
	for _, change := range changes {
		typ, err := e.md.PropertyType(change.Field)
		if err != nil {
			return err
		}
		upd.Set(change.Field, change.NewValue, typ)
		if change.Field == schema.UpdatedAtColumn {
			touched = true
		}
	}
	if len(changes) == 0 {
		return nil
	}
	if e.md.Timestamps() && !touched {
		now := e.session.now()
		upd.Set(schema.UpdatedAtColumn, now, schema.TypeDateTime)
		produced[schema.UpdatedAtColumn] = now
	}
	upd.Where(e.keyCondition())

	res, err := e.session.executor(ctx).Exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("update %s: %w", e.md.Name(), err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w: key %v", e.md.Name(), ErrNotFound, e.Key())
	}
	e.state.Commit(produced)

	e.session.logger.Debug("entity updated",
		zap.String("entity", e.md.Name()), zap.Any("key", e.Key()), zap.Int("columns", len(changes)))
	return nil
}

func (e *Entity) keyCondition() statement.Condition {
	return statement.TypedCond(e.md.PrimaryKey(), statement.OpEqual, e.Key(), e.md.KeyType())
}

// Delete removes the entity. Types with soft deletion get a deletion mark
// unless hard is set; a hard delete removes the row and leaves the entity
// new again.
func (e *Entity) Delete(ctx context.Context, hard bool) error {
	if e.md.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.md.Name())
	}
	if e.IsNew() {
		return fmt.Errorf("delete %s: %w", e.md.Name(), ErrNotPersisted)
	}
	soft := e.md.SoftDelete() && !hard
	if soft && e.IsDeleted() {
		return fmt.Errorf("delete %s %v: %w", e.md.Name(), e.Key(), ErrAlreadyDeleted)
	}

	if err := e.session.runHooks(ctx, hooks.BeforeDelete, e); err != nil {
		return err
	}

	var stmt statement.Statement
	now := e.session.now()
	if soft {
		stmt = statement.NewUpdate(e.md.Table()).
			Set(schema.DeletedAtColumn, now, schema.TypeDateTime).
			Where(e.keyCondition())
	} else {
		stmt = statement.NewDelete(e.md.Table()).Where(e.keyCondition())
	}

	res, err := e.session.executor(ctx).Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.md.Name(), err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s: %w: key %v", e.md.Name(), ErrNotFound, e.Key())
	}

	key := e.Key()
	if soft {
		e.state.Apply(map[string]interface{}{schema.DeletedAtColumn: now})
	} else {
		e.state.Forget(e.md.PrimaryKey())
		if e.md.SoftDelete() {
			e.state.Apply(map[string]interface{}{schema.DeletedAtColumn: nil})
		}
	}
	e.session.logger.Debug("entity deleted",
		zap.String("entity", e.md.Name()), zap.Any("key", key), zap.Bool("hard", !soft))

	return e.session.runHooks(ctx, hooks.AfterDelete, e)
}

// Restore clears the soft-deletion mark
func (e *Entity) Restore(ctx context.Context) error {
	if e.md.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.md.Name())
	}
	if e.IsNew() {
		return fmt.Errorf("restore %s: %w", e.md.Name(), ErrNotPersisted)
	}
	if !e.IsDeleted() {
		return fmt.Errorf("restore %s %v: %w", e.md.Name(), e.Key(), ErrNotDeleted)
	}

	upd := statement.NewUpdate(e.md.Table()).
		Set(schema.DeletedAtColumn, nil, schema.TypeDateTime).
		Where(e.keyCondition())
	res, err := e.session.executor(ctx).Exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("restore %s: %w", e.md.Name(), err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("restore %s: %w: key %v", e.md.Name(), ErrNotFound, e.Key())
	}
	e.state.Apply(map[string]interface{}{schema.DeletedAtColumn: nil})

	return e.session.runHooks(ctx, hooks.AfterRestore, e)
}
