package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/repository"
	"github.com/sakif/postmarket/internal/search"
)

// ItemService handles attaching marketplace items to posts and searching the
// external provider.
type ItemService struct {
	items    repository.ItemRepository
	posts    repository.PostRepository
	searcher search.Searcher
	logger   *slog.Logger
}

// NewItemService creates a new ItemService.
func NewItemService(
	items repository.ItemRepository,
	posts repository.PostRepository,
	searcher search.Searcher,
	logger *slog.Logger,
) *ItemService {
	return &ItemService{
		items:    items,
		posts:    posts,
		searcher: searcher,
		logger:   logger,
	}
}

// Search proxies a keyword search to the external item provider.
// An empty keyword yields an empty result, not an error.
func (s *ItemService) Search(ctx context.Context, keyword string) ([]model.SearchItem, error) {
	items, err := s.searcher.Search(ctx, keyword)
	if err != nil {
		s.logger.Error("item search failed",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return items, nil
}

// Create attaches an item to a post. Only the post's owner may attach.
//
// The parent post's existence is checked before ownership — a missing post is
// NotFound, a post owned by someone else is Forbidden, in that order.
func (s *ItemService) Create(ctx context.Context, userID int64, item *model.Item) (*model.Item, error) {
	if item.PostID == 0 {
		return nil, apperror.ValidationFailed("postId", "missing fields")
	}

	post, err := s.posts.GetPostByID(ctx, item.PostID)
	if err != nil {
		return nil, err // NotFound propagates as-is
	}
	if post.UserID != userID {
		return nil, apperror.Forbidden("you do not own this post")
	}

	item.UserID = userID
	if err := s.items.CreateItem(ctx, item); err != nil {
		s.logger.Error("failed to create item",
			slog.Int64("postID", item.PostID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating item: %w", err)
	}

	s.logger.Info("item attached",
		slog.Int64("id", item.ID),
		slog.Int64("postID", item.PostID),
		slog.Int64("userID", userID),
	)

	return item, nil
}

// Delete removes an item, but only for its owner.
// Existence before ownership, same as post deletion.
func (s *ItemService) Delete(ctx context.Context, userID, itemID int64) error {
	item, err := s.items.GetItemByID(ctx, itemID)
	if err != nil {
		return err
	}

	if item.UserID != userID {
		s.logger.Warn("item delete forbidden",
			slog.Int64("itemID", itemID),
			slog.Int64("ownerID", item.UserID),
			slog.Int64("callerID", userID),
		)
		return apperror.Forbidden("you do not own this item")
	}

	if err := s.items.DeleteItem(ctx, itemID); err != nil {
		return err
	}

	s.logger.Info("item deleted", slog.Int64("id", itemID), slog.Int64("userID", userID))
	return nil
}
