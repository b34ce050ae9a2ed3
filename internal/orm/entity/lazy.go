package entity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// Related returns the target of a one-to-one relation, loading it on first
// access. A new entity, or a nil foreign key, resolves to nil without a
// query. A foreign key pointing at no row also resolves to nil.
func (e *Entity) Related(ctx context.Context, name string) (*Entity, error) {
	rel, ok := e.md.Relation(name)
	if !ok || rel.IsCollection() {
		return nil, propertyError(e.md, name, "is not a one-to-one relation")
	}
	if e.resolved[name] {
		return e.related[name], nil
	}
	if e.IsNew() {
		return nil, nil
	}

	target, err := e.loadRelated(ctx, rel)
	if err != nil {
		return nil, err
	}
	e.related[name] = target
	e.resolved[name] = true
	return target, nil
}

func (e *Entity) loadRelated(ctx context.Context, rel *schema.Relation) (*Entity, error) {
	fk, _ := e.state.Get(rel.ForeignKey())
	if fk == nil {
		return nil, nil
	}
	repo, err := e.session.Repository(rel.TargetName())
	if err != nil {
		return nil, err
	}
	e.session.logger.Debug("lazy load",
		zap.String("entity", e.md.Name()), zap.String("relation", rel.Name()), zap.Any("key", fk))

	if rel.BindingKey() == repo.md.PrimaryKey() {
		target, err := repo.Get(ctx, fk)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return target, err
	}
	return repo.Query().Where(rel.BindingKey(), "=", fk).First(ctx)
}

// Collection returns the members of a one-to-many or many-to-many
// relation, loading them with one query on first access. A new entity
// resolves to an empty collection without a query.
func (e *Entity) Collection(ctx context.Context, name string) (*Collection, error) {
	rel, ok := e.md.Relation(name)
	if !ok || !rel.IsCollection() {
		return nil, propertyError(e.md, name, "is not a collection relation")
	}
	if e.resolved[name] {
		return e.collections[name], nil
	}

	target, err := rel.Target()
	if err != nil {
		return nil, err
	}

	var members []*Entity
	if !e.IsNew() {
		if members, err = e.loadCollection(ctx, rel); err != nil {
			return nil, err
		}
	}

	c := newCollection(e, rel, target, members)
	e.collections[name] = c
	e.resolved[name] = true
	return c, nil
}

func (e *Entity) loadCollection(ctx context.Context, rel *schema.Relation) ([]*Entity, error) {
	repo, err := e.session.Repository(rel.TargetName())
	if err != nil {
		return nil, err
	}
	e.session.logger.Debug("lazy load",
		zap.String("entity", e.md.Name()), zap.String("relation", rel.Name()), zap.Any("key", e.Key()))

	if rel.Kind() == schema.ManyToMany {
		list, err := query.ManyToMany(rel, e.md, e.Key())
		if err != nil {
			return nil, err
		}
		return repo.find(ctx, list)
	}

	ownerKey, _ := e.state.Get(rel.ForeignKey())
	if ownerKey == nil {
		return nil, nil
	}
	members, err := repo.Query().Where(rel.BindingKey(), "=", ownerKey).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s.%s: %w", e.md.Name(), rel.Name(), err)
	}
	return members, nil
}
