package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/repository"
)

const (
	MaxPostTitleLength   = 200
	MaxPostContentLength = 10000
)

// PostService handles business logic for posts.
type PostService struct {
	posts  repository.PostRepository
	logger *slog.Logger
}

// NewPostService creates a new PostService.
func NewPostService(posts repository.PostRepository, logger *slog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		logger: logger,
	}
}

// Create validates and saves a new post owned by userID.
func (s *PostService) Create(ctx context.Context, userID int64, title, content string) (*model.Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)

	if title == "" || content == "" {
		return nil, apperror.ValidationFailed("", "missing fields")
	}
	if len(title) > MaxPostTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxPostTitleLength))
	}
	if len(content) > MaxPostContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxPostContentLength))
	}

	post := &model.Post{
		Title:      title,
		Content:    content,
		UserID:     userID,
		LikesCount: 0,
		Items:      []model.Item{},
	}

	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("id", post.ID),
		slog.Int64("userID", userID),
	)

	return post, nil
}

// List returns all posts, newest first, with authors and items.
func (s *PostService) List(ctx context.Context) ([]model.Post, error) {
	posts, err := s.posts.ListPosts(ctx)
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

// GetByID returns one post with its author and items.
// Returns apperror.ErrNotFound if the post doesn't exist.
func (s *PostService) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	return s.posts.GetPostDetail(ctx, id)
}

// Delete removes a post, but only for its owner.
//
// ORDER MATTERS: existence is checked before ownership, so the caller gets
// NotFound for a missing post and Forbidden only for a post that exists and
// belongs to someone else. Reversing the order would change what an
// unauthorized caller can learn about which IDs exist.
func (s *PostService) Delete(ctx context.Context, userID, postID int64) error {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return err // NotFound propagates as-is
	}

	if post.UserID != userID {
		s.logger.Warn("post delete forbidden",
			slog.Int64("postID", postID),
			slog.Int64("ownerID", post.UserID),
			slog.Int64("callerID", userID),
		)
		return apperror.Forbidden("you do not own this post")
	}

	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.logger.Info("post deleted", slog.Int64("id", postID), slog.Int64("userID", userID))
	return nil
}
