// Package sync is the glue between the opaque remote transport and the local
// store: it applies batches of remote changes through the store's upsert and
// soft-delete primitives and announces completion on the event bus.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xDeepak/giganotes-backend/internal/bus"
	"github.com/xDeepak/giganotes-backend/internal/store"
)

// EntityKind names the entity a change applies to.
type EntityKind string

const (
	// EntityNote targets a note row.
	EntityNote EntityKind = "note"
	// EntityFolder targets a folder row.
	EntityFolder EntityKind = "folder"
)

// Operation names what a change does to its entity.
type Operation string

const (
	// OperationUpsert replicates a remote insert.
	OperationUpsert Operation = "upsert"
	// OperationDelete replicates a remote soft delete.
	OperationDelete Operation = "delete"
)

var (
	errMissingStore     = errors.New("store dependency is required")
	errMissingPayload   = errors.New("change is missing its entity payload")
	errUnknownEntity    = errors.New("unknown entity kind")
	errUnknownOperation = errors.New("unknown operation")
)

// Change is one remote mutation to replicate locally. Upserts carry the full
// entity; deletes carry only the target id.
type Change struct {
	Kind      EntityKind
	Operation Operation
	Note      *store.Note
	Folder    *store.Folder
	NoteID    store.NoteID
	FolderID  store.FolderID
}

// Result summarizes an applied batch. Ignored counts upserts skipped because
// the row already existed locally.
type Result struct {
	Applied int
	Ignored int
}

// ApplierConfig carries the applier's collaborators.
type ApplierConfig struct {
	Store  *store.Service
	Bus    *bus.Bus
	Clock  func() time.Time
	Logger *zap.Logger
}

// Applier replays remote changes against the local store.
type Applier struct {
	store  *store.Service
	bus    *bus.Bus
	clock  func() time.Time
	logger *zap.Logger
}

// NewApplier validates the configuration and constructs an Applier.
func NewApplier(cfg ApplierConfig) (*Applier, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		store:  cfg.Store,
		bus:    cfg.Bus,
		clock:  clock,
		logger: logger,
	}, nil
}

// Apply replays the batch in order and publishes a sync-finished event when
// every change went through. Folder deletes cascade through the subtree; a
// delete targeting an id that never reached this device is skipped rather
// than failed, since the remote row may be younger than the local snapshot.
func (a *Applier) Apply(ctx context.Context, userID store.UserID, changes []Change) (Result, error) {
	result := Result{}
	for _, change := range changes {
		applied, err := a.applyOne(ctx, userID, change)
		if err != nil {
			a.logger.Error("remote change failed",
				zap.String("user_id", userID.String()),
				zap.String("entity", string(change.Kind)),
				zap.String("operation", string(change.Operation)),
				zap.Error(err))
			return Result{}, err
		}
		if applied {
			result.Applied++
		} else {
			result.Ignored++
		}
	}

	if a.bus != nil {
		a.bus.Publish(bus.Message{
			UserID:    userID.String(),
			EventType: bus.EventSyncFinished,
			Timestamp: a.clock().UTC(),
		})
	}
	a.logger.Info("remote sync applied",
		zap.String("user_id", userID.String()),
		zap.Int("applied", result.Applied),
		zap.Int("ignored", result.Ignored))
	return result, nil
}

func (a *Applier) applyOne(ctx context.Context, userID store.UserID, change Change) (bool, error) {
	switch change.Kind {
	case EntityNote:
		switch change.Operation {
		case OperationUpsert:
			if change.Note == nil {
				return false, errMissingPayload
			}
			return a.store.UpsertNote(ctx, userID, change.Note)
		case OperationDelete:
			err := a.store.SoftDeleteNote(ctx, userID, change.NoteID)
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		}
		return false, fmt.Errorf("%w: %s", errUnknownOperation, change.Operation)
	case EntityFolder:
		switch change.Operation {
		case OperationUpsert:
			if change.Folder == nil {
				return false, errMissingPayload
			}
			return a.store.UpsertFolder(ctx, userID, change.Folder)
		case OperationDelete:
			err := a.store.SoftDeleteFolderTree(ctx, userID, change.FolderID)
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		}
		return false, fmt.Errorf("%w: %s", errUnknownOperation, change.Operation)
	}
	return false, fmt.Errorf("%w: %s", errUnknownEntity, change.Kind)
}
