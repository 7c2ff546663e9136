// Package creators serves read-only creator data: the creator directory, the
// public creator page and the tips a signed-in creator has received.
package creators

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"tipkoro/internal/types"
)

const (
	// PublicTipsLimit is how many recent tips a public page shows.
	PublicTipsLimit = 10
	// DefaultTipsLimit and MaxTipsLimit bound the creator's own tip list.
	DefaultTipsLimit = 50
	MaxTipsLimit     = 100

	// DefaultDirectoryLimit and MaxDirectoryLimit bound one directory page.
	DefaultDirectoryLimit = 50
	MaxDirectoryLimit     = 100
	maxSearchLength       = 100
)

// DirectoryEntry is one creator card in the directory.
type DirectoryEntry struct {
	Username        string `json:"username"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Bio             string `json:"bio,omitempty"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	IsVerified      bool   `json:"is_verified"`
	TotalSupporters int    `json:"total_supporters"`
}

// Page is the public creator page.
type Page struct {
	Creator    types.PublicCreator `json:"creator"`
	RecentTips []PublicTip         `json:"recent_tips"`
}

// PublicTip is a tip as any visitor may see it.
type PublicTip struct {
	SupporterName string    `json:"supporter_name"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Service reads creator data.
type Service struct {
	store  types.ScopedStoreFactory
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(store types.ScopedStoreFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Directory lists creators who finished onboarding, most supported first,
// optionally filtered by search across name, username and bio.
func (s *Service) Directory(ctx context.Context, search string, limit int) ([]DirectoryEntry, error) {
	search = strings.TrimSpace(search)
	if utf8.RuneCountInString(search) > maxSearchLength {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidFormat, "search is too long", nil,
			map[string]any{"max_length": maxSearchLength})
	}
	if limit <= 0 {
		limit = DefaultDirectoryLimit
	}
	limit = min(limit, MaxDirectoryLimit)

	var out []DirectoryEntry
	err := s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		profiles, err := repos.Profiles().ListCreators(ctx, types.CreatorQuery{Search: search, Limit: limit})
		if err != nil {
			return err
		}
		out = make([]DirectoryEntry, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, DirectoryEntry{
				Username:        p.Username,
				FirstName:       p.FirstName,
				LastName:        p.LastName,
				Bio:             p.Bio,
				AvatarURL:       p.AvatarURL,
				IsVerified:      p.IsVerified,
				TotalSupporters: p.TotalSupporters,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PublicPage returns the page of a creator who finished onboarding. Anyone
// else is reported as not found so unfinished accounts stay private.
func (s *Service) PublicPage(ctx context.Context, username string) (*Page, error) {
	username = types.NormalizeUsername(username)
	if !types.IsValidUsername(username) {
		return nil, types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
	}

	var page *Page
	err := s.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := repos.Profiles().GetByUsername(ctx, username)
		if err != nil {
			if types.CodeOf(err) == types.ErrCodeNotFoundProfile {
				return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
			}
			return err
		}
		if !p.IsCreator() || p.OnboardingStatus != types.OnboardingCompleted {
			return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
		}

		tips, err := repos.Tips().ListByCreator(ctx, p.ID, PublicTipsLimit)
		if err != nil {
			return err
		}
		page = &Page{Creator: p.Public(), RecentTips: publicTips(tips)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// publicTips keeps completed tips and drops supporter contact details.
func publicTips(tips []*types.Tip) []PublicTip {
	out := make([]PublicTip, 0, len(tips))
	for _, t := range tips {
		if t.PaymentStatus != types.PaymentCompleted {
			continue
		}
		r := t.Redacted()
		out = append(out, PublicTip{
			SupporterName: r.SupporterName,
			Amount:        r.Amount,
			Currency:      r.Currency,
			Message:       r.Message,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out
}

// ReceivedTips lists the tips the caller received, newest first. Anonymous
// tips are redacted even for the creator.
func (s *Service) ReceivedTips(ctx context.Context, actor types.Actor, limit int) ([]types.Tip, error) {
	if limit <= 0 {
		limit = DefaultTipsLimit
	}
	limit = min(limit, MaxTipsLimit)

	var out []types.Tip
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := creatorOf(ctx, repos, actor.ID)
		if err != nil {
			return err
		}
		tips, err := repos.Tips().ListByCreator(ctx, p.ID, limit)
		if err != nil {
			return err
		}
		out = make([]types.Tip, 0, len(tips))
		for _, t := range tips {
			out = append(out, t.Redacted())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FeedChannel returns the profile id whose live tips the caller may follow.
func (s *Service) FeedChannel(ctx context.Context, actor types.Actor) (string, error) {
	var id string
	err := s.store.ForIdentity(ctx, actor.ID, func(ctx context.Context, repos types.RepositoryRegistry) error {
		p, err := creatorOf(ctx, repos, actor.ID)
		if err != nil {
			return err
		}
		id = p.ID
		return nil
	})
	return id, err
}

func creatorOf(ctx context.Context, repos types.RepositoryRegistry, userID string) (*types.Profile, error) {
	p, err := repos.Profiles().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsCreator() {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "only creators receive tips", nil)
	}
	return p, nil
}
