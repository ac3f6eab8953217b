package oxia

import (
	"context"
	"errors"
	"fmt"

	"github.com/dray-io/brokerstats/internal/metadata"
)

type txnOp struct {
	key             string
	value           []byte
	delete          bool
	expectedVersion *metadata.Version
}

// appliedOp remembers what a committed write replaced so it can be reverted.
type appliedOp struct {
	key     string
	prev    metadata.GetResult
	version metadata.Version // version written, 0 after a delete
}

// transaction implements metadata.Txn for Oxia.
type transaction struct {
	store *Store
	ctx   context.Context
	ops   []txnOp
}

func (t *transaction) Get(key string) ([]byte, metadata.Version, error) {
	res, err := t.store.Get(t.ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if !res.Exists {
		return nil, 0, metadata.ErrKeyNotFound
	}
	return res.Value, res.Version, nil
}

func (t *transaction) Put(key string, value []byte) {
	t.ops = append(t.ops, txnOp{key: key, value: value})
}

func (t *transaction) PutWithVersion(key string, value []byte, expectedVersion metadata.Version) {
	t.ops = append(t.ops, txnOp{key: key, value: value, expectedVersion: &expectedVersion})
}

func (t *transaction) Delete(key string) {
	t.ops = append(t.ops, txnOp{key: key, delete: true})
}

func (t *transaction) commit() error {
	applied := make([]appliedOp, 0, len(t.ops))
	for _, op := range t.ops {
		done, err := t.apply(op)
		if err != nil {
			if rbErr := t.rollback(applied); rbErr != nil {
				return fmt.Errorf("%w: rollback failed: %v", err, rbErr)
			}
			return err
		}
		if done != nil {
			applied = append(applied, *done)
		}
	}
	return nil
}

// apply performs one write conditional on the state it observed first.
func (t *transaction) apply(op txnOp) (*appliedOp, error) {
	prev, err := t.store.Get(t.ctx, op.key)
	if err != nil {
		return nil, err
	}
	if op.expectedVersion != nil && *op.expectedVersion != prev.Version {
		return nil, metadata.ErrVersionMismatch
	}

	if op.delete {
		if !prev.Exists {
			return nil, nil
		}
		if err := t.store.delete(t.ctx, op.key, &prev.Version); err != nil {
			return nil, err
		}
		return &appliedOp{key: op.key, prev: prev}, nil
	}

	version, err := t.store.put(t.ctx, op.key, op.value, &prev.Version)
	if err != nil {
		return nil, err
	}
	return &appliedOp{key: op.key, prev: prev, version: version}, nil
}

// rollback reverts applied writes newest first. A key changed by someone
// else since is left alone.
func (t *transaction) rollback(applied []appliedOp) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		op := applied[i]
		var err error
		switch {
		case op.prev.Exists:
			_, err = t.store.put(t.ctx, op.key, op.prev.Value, &op.version)
		default:
			err = t.store.delete(t.ctx, op.key, &op.version)
		}
		if err != nil && !errors.Is(err, metadata.ErrVersionMismatch) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
