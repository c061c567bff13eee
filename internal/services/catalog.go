package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"piiquante/internal/config"
	"piiquante/internal/ledger"
	"piiquante/internal/models"
	"piiquante/internal/store"
	"piiquante/internal/utils"
	"strings"
	"sync"
)

const listCacheKey = "sauces:all"

// SauceStore is the persistence the catalog needs. *store.SauceStore
// implements it.
type SauceStore interface {
	List(ctx context.Context) ([]models.Sauce, error)
	Get(ctx context.Context, id string) (models.Sauce, error)
	Create(ctx context.Context, sauce *models.Sauce) error
	UpdateDetails(ctx context.Context, sauce models.Sauce, expectedVersion int64) error
	LoadVoteState(ctx context.Context, id string) (ledger.State, int64, error)
	SaveVoteState(ctx context.Context, id string, st ledger.State, expectedVersion int64) error
	Delete(ctx context.Context, id string, guard func(models.Sauce) error) error
	Version(ctx context.Context, id string) (int64, error)
	Versions(ctx context.Context) ([]store.SauceVersion, error)
}

type ImageStorage interface {
	Save(fh *multipart.FileHeader, baseURL string) (string, error)
	Remove(imageURL string) error
}

// SauceInput is what a client may set on a sauce. Owner, votes and id are
// never taken from it.
type SauceInput struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Description  string `json:"description"`
	MainPepper   string `json:"mainPepper"`
	Heat         int    `json:"heat"`
}

// Upload is an image attached to a create or update request.
type Upload struct {
	File    *multipart.FileHeader
	BaseURL string
}

func (in SauceInput) clean() (SauceInput, error) {
	out := SauceInput{
		Name:         utils.SanitizeText(in.Name),
		Manufacturer: utils.SanitizeText(in.Manufacturer),
		Description:  strings.TrimSpace(in.Description),
		MainPepper:   utils.SanitizeText(in.MainPepper),
		Heat:         in.Heat,
	}
	switch {
	case out.Name == "":
		return out, fmt.Errorf("%w: name is required", ErrValidation)
	case out.Manufacturer == "":
		return out, fmt.Errorf("%w: manufacturer is required", ErrValidation)
	case out.Description == "":
		return out, fmt.Errorf("%w: description is required", ErrValidation)
	case out.MainPepper == "":
		return out, fmt.Errorf("%w: mainPepper is required", ErrValidation)
	case out.Heat < 1 || out.Heat > 10:
		return out, fmt.Errorf("%w: heat must be between 1 and 10", ErrValidation)
	}
	return out, nil
}

// SauceCatalog runs every sauce operation: CRUD with ownership checks and
// the vote read-modify-write loop.
type SauceCatalog struct {
	store      SauceStore
	images     ImageStorage
	sauces     *utils.Cache[models.Sauce]
	lists      *utils.Cache[[]models.Sauce]
	maxRetries int
	logger     *slog.Logger

	// gen moves on every write so a read that raced a write never caches
	// what it saw.
	mu  sync.Mutex
	gen uint64
}

func NewSauceCatalog(st SauceStore, images ImageStorage, vote config.VoteConfig, cache config.CacheConfig, logger *slog.Logger) (*SauceCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sauces, err := utils.NewCache[models.Sauce](cache.Size, cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("sauce cache: %w", err)
	}
	lists, err := utils.NewCache[[]models.Sauce](1, cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	retries := vote.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	return &SauceCatalog{
		store:      st,
		images:     images,
		sauces:     sauces,
		lists:      lists,
		maxRetries: retries,
		logger:     logger,
	}, nil
}

// List returns every sauce, newest first. A cached list is served only
// while the ids and versions in the store still match it, so writes made by
// other server processes are seen at once.
func (c *SauceCatalog) List(ctx context.Context) ([]models.Sauce, error) {
	if cached, ok := c.lists.Get(listCacheKey); ok {
		current, err := c.store.Versions(ctx)
		if err != nil {
			return nil, err
		}
		if sameVersions(cached, current) {
			return append([]models.Sauce(nil), cached...), nil
		}
		c.lists.Delete(listCacheKey)
	}
	gen := c.generation()
	rows, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		decorate(&rows[i])
	}
	c.cacheIfCurrent(gen, func() { c.lists.Set(listCacheKey, rows) })
	return append([]models.Sauce(nil), rows...), nil
}

// Get returns one sauce. A cache hit is confirmed against the row's current
// version before it is served.
func (c *SauceCatalog) Get(ctx context.Context, id string) (models.Sauce, error) {
	if cached, ok := c.sauces.Get(id); ok {
		version, err := c.store.Version(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			c.sauces.Delete(id)
			return models.Sauce{}, err
		case err != nil:
			return models.Sauce{}, err
		case version == cached.Version:
			return cached, nil
		}
		c.sauces.Delete(id)
	}
	gen := c.generation()
	sauce, err := c.store.Get(ctx, id)
	if err != nil {
		return models.Sauce{}, err
	}
	decorate(&sauce)
	c.cacheIfCurrent(gen, func() { c.sauces.Set(id, sauce) })
	return sauce, nil
}

func sameVersions(cached []models.Sauce, current []store.SauceVersion) bool {
	if len(cached) != len(current) {
		return false
	}
	for i := range cached {
		if cached[i].ID != current[i].ID || cached[i].Version != current[i].Version {
			return false
		}
	}
	return true
}

// Create stores a new sauce owned by ownerID. An image is required.
func (c *SauceCatalog) Create(ctx context.Context, ownerID string, in SauceInput, image Upload) (models.Sauce, error) {
	if ownerID == "" {
		return models.Sauce{}, ErrUnauthorized
	}
	in, err := in.clean()
	if err != nil {
		return models.Sauce{}, err
	}
	imageURL, err := c.images.Save(image.File, image.BaseURL)
	if err != nil {
		return models.Sauce{}, err
	}

	sauce := models.Sauce{
		UserID:       ownerID,
		Name:         in.Name,
		Manufacturer: in.Manufacturer,
		Description:  in.Description,
		MainPepper:   in.MainPepper,
		Heat:         in.Heat,
		ImageURL:     imageURL,
	}
	if err := c.store.Create(ctx, &sauce); err != nil {
		c.removeImage(imageURL)
		return models.Sauce{}, err
	}
	c.invalidate(sauce.ID)

	c.logger.Info("sauce created", "event", "sauce_created", "sauce_id", sauce.ID, "owner_id", ownerID)
	decorate(&sauce)
	return sauce, nil
}

// Update replaces the descriptive fields of a sauce the caller owns. When
// image carries a file it replaces the current one; the old file is removed
// only once the row is updated. Ownership is checked before the input is
// validated or anything is written.
func (c *SauceCatalog) Update(ctx context.Context, callerID, id string, in SauceInput, image Upload) (models.Sauce, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return models.Sauce{}, err
	}
	if current.UserID != callerID {
		return models.Sauce{}, ErrForbidden
	}

	in, err = in.clean()
	if err != nil {
		return models.Sauce{}, err
	}

	newImage := ""
	if image.File != nil {
		if newImage, err = c.images.Save(image.File, image.BaseURL); err != nil {
			return models.Sauce{}, err
		}
	}

	var oldImage string
	err = c.retry(ctx, func() error {
		current, err := c.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.UserID != callerID {
			return ErrForbidden
		}
		oldImage = current.ImageURL

		next := current
		next.Name = in.Name
		next.Manufacturer = in.Manufacturer
		next.Description = in.Description
		next.MainPepper = in.MainPepper
		next.Heat = in.Heat
		if newImage != "" {
			next.ImageURL = newImage
		}
		return c.store.UpdateDetails(ctx, next, current.Version)
	})
	if err != nil {
		c.removeImage(newImage)
		return models.Sauce{}, err
	}
	c.invalidate(id)

	if newImage != "" && oldImage != newImage {
		c.removeImage(oldImage)
	}

	c.logger.Info("sauce updated", "event", "sauce_updated", "sauce_id", id, "image_replaced", newImage != "")
	return c.fresh(ctx, id)
}

// Delete removes a sauce the caller owns along with its image. The image is
// removed inside the delete transaction so a failure keeps the row.
func (c *SauceCatalog) Delete(ctx context.Context, callerID, id string) error {
	err := c.store.Delete(ctx, id, func(row models.Sauce) error {
		if row.UserID != callerID {
			return ErrForbidden
		}
		return c.images.Remove(row.ImageURL)
	})
	if err != nil {
		return err
	}
	c.invalidate(id)
	c.logger.Info("sauce deleted", "event", "sauce_deleted", "sauce_id", id)
	return nil
}

// Vote applies the caller's vote and returns the sauce as stored after it.
// A concurrent write to the same sauce makes the whole load-apply-save cycle
// run again, up to maxRetries attempts.
func (c *SauceCatalog) Vote(ctx context.Context, callerID, id string, v ledger.Vote) (models.Sauce, error) {
	if callerID == "" {
		return models.Sauce{}, ErrUnauthorized
	}
	if !v.Valid() {
		return models.Sauce{}, fmt.Errorf("%w: %d", ledger.ErrInvalidVoteValue, int(v))
	}

	err := c.retry(ctx, func() error {
		st, version, err := c.store.LoadVoteState(ctx, id)
		if err != nil {
			return err
		}
		if repaired := ledger.Repairs(st, callerID); len(repaired) > 0 {
			c.logger.Warn("vote lists repaired", "event", "sauce_votes_repaired",
				"sauce_id", id, "user_id", callerID, "dropped_user_ids", repaired)
		}
		next, err := ledger.Apply(st, callerID, v)
		if err != nil {
			return err
		}
		return c.store.SaveVoteState(ctx, id, next, version)
	})
	if err != nil {
		return models.Sauce{}, err
	}
	c.invalidate(id)

	c.logger.Debug("vote applied", "event", "sauce_voted", "sauce_id", id, "user_id", callerID, "vote", v.String())
	return c.fresh(ctx, id)
}

// retry runs fn until it stops returning ErrConflict or attempts run out.
func (c *SauceCatalog) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		c.logger.Debug("write conflict, retrying", "event", "sauce_write_conflict", "attempt", attempt)
	}
	c.logger.Warn("write conflict retries exhausted", "event", "sauce_conflict_exhausted", "attempts", c.maxRetries)
	return err
}

// fresh reads a sauce straight from the store, bypassing the cache.
func (c *SauceCatalog) fresh(ctx context.Context, id string) (models.Sauce, error) {
	sauce, err := c.store.Get(ctx, id)
	if err != nil {
		return models.Sauce{}, err
	}
	decorate(&sauce)
	return sauce, nil
}

func (c *SauceCatalog) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *SauceCatalog) cacheIfCurrent(gen uint64, set func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		set()
	}
}

func (c *SauceCatalog) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.sauces.Delete(id)
	c.lists.Delete(listCacheKey)
}

func (c *SauceCatalog) removeImage(imageURL string) {
	if imageURL == "" {
		return
	}
	if err := c.images.Remove(imageURL); err != nil {
		c.logger.Error("image cleanup failed", "event", "image_remove_failed", "url", imageURL, "error", err.Error())
	}
}

// decorate fills the fields that are derived on read.
func decorate(s *models.Sauce) {
	if s.UsersLiked == nil {
		s.UsersLiked = []string{}
	}
	if s.UsersDisliked == nil {
		s.UsersDisliked = []string{}
	}
	s.DescriptionHTML = utils.RenderMarkdown(s.Description)
}
