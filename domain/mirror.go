package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EliorMigdal/kaplat-ex7/logging"
)

// write applies fn to the primary store and then to every other store.
// There is no shared transaction: a primary failure is returned and leaves
// the mirrors untouched, a mirror failure is logged and handed to the
// repairer while the request still succeeds.
func (s *Service) write(ctx context.Context, primary Backend, op string, id int64, fn func(context.Context, Store) error) error {
	primary = s.resolve(primary)
	source := s.stores[primary]
	if err := fn(ctx, source); err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(string(primary)), op, err)
	}

	entry := logging.Entry(ctx, s.log)
	for _, b := range s.order {
		if b == primary {
			continue
		}
		mirror := s.stores[b]
		if err := fn(ctx, mirror); err != nil {
			entry.Errorf("mirror %s of todo id %d to %s failed: %v", op, id, b, err)
			r := Repair{
				Backend: b,
				Op:      op,
				TodoID:  id,
				Run:     func(ctx context.Context) error { return resync(ctx, source, mirror, id) },
			}
			if s.repair == nil || !s.repair.Schedule(r) {
				entry.Errorf("mirror %s of todo id %d to %s dropped", op, id, b)
			}
		}
	}
	return nil
}

func (s *Service) resolve(b Backend) Backend {
	if _, ok := s.stores[b]; ok {
		return b
	}
	return BackendMongo
}

// resync makes todo id in dst match its current state in src: a todo missing
// from src is deleted from dst, a todo missing from dst is inserted and
// otherwise the status is copied.
func resync(ctx context.Context, src, dst Store, id int64) error {
	t, err := src.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return dst.Delete(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("read todo id %d: %w", id, err)
	}

	_, err = dst.Status(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return dst.Insert(ctx, t)
	}
	if err != nil {
		return err
	}
	return dst.UpdateStatus(ctx, id, t.Status)
}
