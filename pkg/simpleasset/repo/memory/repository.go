package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// ErrUnitOfWorkDone is returned when a finished unit of work is used again
var ErrUnitOfWorkDone = errors.New("unit of work already committed or rolled back")

type relationKey struct {
	ownerID int64
	assetID int64
}

// Repository implements simpleasset.Catalog using in-memory storage. Writes
// apply immediately and are recorded in the unit of work's undo log so a
// rollback restores the previous state.
type Repository struct {
	mu             sync.RWMutex
	assets         map[int64]*simpleasset.Asset
	relations      map[relationKey]*simpleasset.OwnershipRelation
	nextAssetID    int64
	nextRelationID int64
}

// New creates a new in-memory catalog
func New() *Repository {
	return &Repository{
		assets:    make(map[int64]*simpleasset.Asset),
		relations: make(map[relationKey]*simpleasset.OwnershipRelation),
	}
}

// UnitOfWork is the memory catalog's transaction
type UnitOfWork struct {
	repo *Repository
	undo []func()
	done bool
}

// Begin opens a unit of work
func (r *Repository) Begin(ctx context.Context) (simpleasset.UnitOfWork, error) {
	return &UnitOfWork{repo: r}, nil
}

// Commit discards the undo log
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	u.undo = nil
	return nil
}

// Rollback replays the undo log in reverse
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.repo.mu.Lock()
	defer u.repo.mu.Unlock()

	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
	return nil
}

// unit validates uow; callers must hold r.mu.
func (r *Repository) unit(uow simpleasset.UnitOfWork) (*UnitOfWork, error) {
	u, ok := uow.(*UnitOfWork)
	if !ok || u.repo != r {
		return nil, fmt.Errorf("unit of work %T does not belong to this catalog", uow)
	}
	if u.done {
		return nil, ErrUnitOfWorkDone
	}
	return u, nil
}

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, uow simpleasset.UnitOfWork, asset *simpleasset.Asset, ownerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.unit(uow)
	if err != nil {
		return err
	}
	if asset.Size <= 0 {
		return fmt.Errorf("asset size must be positive, got %d", asset.Size)
	}

	r.nextAssetID++
	asset.ID = r.nextAssetID
	assetCopy := *asset
	r.assets[asset.ID] = &assetCopy
	u.undo = append(u.undo, func() { delete(r.assets, assetCopy.ID) })

	key := relationKey{ownerID: ownerID, assetID: asset.ID}
	r.nextRelationID++
	r.relations[key] = &simpleasset.OwnershipRelation{ID: r.nextRelationID, OwnerID: ownerID, AssetID: asset.ID}
	u.undo = append(u.undo, func() { delete(r.relations, key) })

	return nil
}

func (r *Repository) GetVisibleAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) (*simpleasset.Asset, error) {
	asset, err := r.GetAnyAsset(ctx, uow, id)
	if err != nil {
		return nil, err
	}
	if !asset.Visible() {
		return nil, simpleasset.ErrAssetNotFound
	}
	return asset, nil
}

func (r *Repository) GetAnyAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) (*simpleasset.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.unit(uow); err != nil {
		return nil, err
	}

	asset, exists := r.assets[id]
	if !exists {
		return nil, simpleasset.ErrAssetNotFound
	}
	// Return a copy to prevent external modifications
	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) GetOwnershipRelation(ctx context.Context, uow simpleasset.UnitOfWork, assetID, ownerID int64) (*simpleasset.OwnershipRelation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.unit(uow); err != nil {
		return nil, err
	}

	rel, exists := r.relations[relationKey{ownerID: ownerID, assetID: assetID}]
	if !exists {
		return nil, simpleasset.ErrRelationNotFound
	}
	relCopy := *rel
	return &relCopy, nil
}

// ownedAndNotDeleted is the single predicate behind both the page and the
// total of ListOwnerAssets.
func (r *Repository) ownedAndNotDeleted(ownerID int64) []*simpleasset.Asset {
	var result []*simpleasset.Asset
	for key := range r.relations {
		if key.ownerID != ownerID {
			continue
		}
		asset, exists := r.assets[key.assetID]
		if !exists || asset.IsDeleted {
			continue
		}
		assetCopy := *asset
		result = append(result, &assetCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

func (r *Repository) ListOwnerAssets(ctx context.Context, uow simpleasset.UnitOfWork, ownerID int64, skip, limit int) ([]*simpleasset.Asset, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.unit(uow); err != nil {
		return nil, 0, err
	}

	matched := r.ownedAndNotDeleted(ownerID)
	total := int64(len(matched))

	if skip < 0 {
		skip = 0
	}
	if skip >= len(matched) {
		return nil, total, nil
	}
	end := len(matched)
	if limit >= 0 && skip+limit < end {
		end = skip + limit
	}
	return matched[skip:end], total, nil
}

func (r *Repository) ToggleSoftDelete(ctx context.Context, uow simpleasset.UnitOfWork, id int64, deleting bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.unit(uow)
	if err != nil {
		return err
	}

	asset, exists := r.assets[id]
	if !exists {
		return simpleasset.ErrAssetNotFound
	}

	prevDeleted, prevUpdated := asset.IsDeleted, asset.UpdatedAt
	asset.IsDeleted = deleting
	asset.UpdatedAt = time.Now().UTC()
	u.undo = append(u.undo, func() {
		asset.IsDeleted = prevDeleted
		asset.UpdatedAt = prevUpdated
	})
	return nil
}

func (r *Repository) HardDeleteAsset(ctx context.Context, uow simpleasset.UnitOfWork, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.unit(uow)
	if err != nil {
		return err
	}

	for key, rel := range r.relations {
		if key.assetID != id {
			continue
		}
		delete(r.relations, key)
		u.undo = append(u.undo, func() { r.relations[key] = rel })
	}

	asset, exists := r.assets[id]
	if !exists {
		return simpleasset.ErrAssetNotFound
	}
	delete(r.assets, id)
	u.undo = append(u.undo, func() { r.assets[id] = asset })
	return nil
}

// RelationCount returns the number of ownership relations, for tests.
func (r *Repository) RelationCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.relations)
}

var _ simpleasset.Catalog = (*Repository)(nil)
