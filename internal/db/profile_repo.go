package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tipkoro/internal/types"
)

// ProfileRepository provides data access for the profiles table.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a ProfileRepository over db.
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// profileColumns must match the Scan order in scanProfile.
const profileColumns = `p.id, p.user_id, COALESCE(p.email, ''), COALESCE(p.first_name, ''),
	COALESCE(p.last_name, ''), COALESCE(p.username, ''), COALESCE(p.bio, ''),
	COALESCE(p.avatar_url, ''), COALESCE(p.account_type, ''), p.onboarding_status,
	COALESCE(p.twitter, ''), COALESCE(p.instagram, ''), COALESCE(p.youtube, ''),
	COALESCE(p.facebook, ''), COALESCE(p.other_link, ''), p.is_verified,
	p.total_received, p.total_supporters, p.created_at, p.updated_at`

func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.Username,
		&p.Bio,
		&p.AvatarURL,
		&p.AccountType,
		&p.OnboardingStatus,
		&p.Twitter,
		&p.Instagram,
		&p.Youtube,
		&p.Facebook,
		&p.OtherLink,
		&p.IsVerified,
		&p.TotalReceived,
		&p.TotalSupporters,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) getOne(ctx context.Context, where string, arg any) (*types.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByUserID returns the profile owned by an identity-provider user.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*types.Profile, error) {
	return r.getOne(ctx, `p.user_id = $1`, userID)
}

// GetByID returns a profile by primary key.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*types.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return r.getOne(ctx, `p.id = $1`, id)
}

// GetByUsername looks the username up case-insensitively.
func (r *ProfileRepository) GetByUsername(ctx context.Context, username string) (*types.Profile, error) {
	return r.getOne(ctx, `p.username = $1`, types.NormalizeUsername(username))
}

// CreateIfAbsent inserts p unless the user already has a profile, then
// returns the stored row. Concurrent first reads therefore converge on one row.
func (r *ProfileRepository) CreateIfAbsent(ctx context.Context, p *types.Profile) (*types.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (id, user_id, email, first_name, last_name, avatar_url, onboarding_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.ID,
		p.UserID,
		nilIfEmpty(p.Email),
		nilIfEmpty(p.FirstName),
		nilIfEmpty(p.LastName),
		nilIfEmpty(p.AvatarURL),
		p.OnboardingStatus,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	return r.GetByUserID(ctx, p.UserID)
}

// UpsertFromIdentity writes identity-owned fields. An existing username and
// onboarding progress are kept; a username collision returns
// conflict_username_taken so the caller can retry with another candidate.
func (r *ProfileRepository) UpsertFromIdentity(ctx context.Context, p *types.Profile) (*types.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stored, err := scanProfile(r.db.QueryRow(ctx,
		`INSERT INTO profiles AS p (id, user_id, email, first_name, last_name, avatar_url, username, onboarding_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     avatar_url = EXCLUDED.avatar_url,
		     username = COALESCE(p.username, EXCLUDED.username),
		     updated_at = NOW()
		 RETURNING `+profileColumns,
		p.ID,
		p.UserID,
		nilIfEmpty(p.Email),
		nilIfEmpty(p.FirstName),
		nilIfEmpty(p.LastName),
		nilIfEmpty(p.AvatarURL),
		nilIfEmpty(types.NormalizeUsername(p.Username)),
		p.OnboardingStatus,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert profile", err)
	}
	return stored, nil
}

// UpdateIdentityFields refreshes the identity-owned columns of an existing profile.
func (r *ProfileRepository) UpdateIdentityFields(ctx context.Context, userID string, upd types.IdentityUpdate) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET email = $2, first_name = $3, last_name = $4, avatar_url = $5, updated_at = NOW()
		 WHERE user_id = $1`,
		userID,
		nilIfEmpty(upd.Email),
		nilIfEmpty(upd.FirstName),
		nilIfEmpty(upd.LastName),
		nilIfEmpty(upd.AvatarURL),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// DeleteByUserID removes the profile and reports whether one existed.
func (r *ProfileRepository) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete profile", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Update applies the non-nil fields of upd. Usernames are stored lowercased.
func (r *ProfileRepository) Update(ctx context.Context, userID string, upd types.ProfileUpdate) (*types.Profile, error) {
	sets := []string{}
	args := []any{userID}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, nilIfEmpty(*v))
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("first_name", upd.FirstName)
	add("last_name", upd.LastName)
	if upd.Username != nil {
		u := types.NormalizeUsername(*upd.Username)
		add("username", &u)
	}
	add("bio", upd.Bio)
	add("avatar_url", upd.AvatarURL)
	add("twitter", upd.Twitter)
	add("instagram", upd.Instagram)
	add("youtube", upd.Youtube)
	add("facebook", upd.Facebook)
	add("other_link", upd.OtherLink)

	if len(sets) == 0 {
		return r.GetByUserID(ctx, userID)
	}
	sets = append(sets, "updated_at = NOW()")

	p, err := scanProfile(r.db.QueryRow(ctx,
		`UPDATE profiles AS p SET `+strings.Join(sets, ", ")+`
		 WHERE p.user_id = $1
		 RETURNING `+profileColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		if isUniqueViolation(err) {
			return nil, types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update profile", err)
	}
	return p, nil
}

// SetOnboarding persists an onboarding step. An empty accountType keeps the
// stored one.
func (r *ProfileRepository) SetOnboarding(ctx context.Context, userID string, accountType types.AccountType, status types.OnboardingStatus) (*types.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`UPDATE profiles AS p
		 SET account_type = COALESCE(NULLIF($2, ''), p.account_type),
		     onboarding_status = $3,
		     updated_at = NOW()
		 WHERE p.user_id = $1
		 RETURNING `+profileColumns,
		userID,
		string(accountType),
		status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update onboarding status", err)
	}
	return p, nil
}

// AdvanceOnboarding is a compare-and-set on onboarding_status.
func (r *ProfileRepository) AdvanceOnboarding(ctx context.Context, profileID string, from, to types.OnboardingStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET onboarding_status = $3, updated_at = NOW()
		 WHERE id = $1 AND onboarding_status = $2`,
		profileID, from, to,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to advance onboarding", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UsernameOwner returns the user_id holding username, or "" when unused.
func (r *ProfileRepository) UsernameOwner(ctx context.Context, username string) (string, error) {
	var owner string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM profiles WHERE username = $1`,
		types.NormalizeUsername(username),
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up username", err)
	}
	return owner, nil
}

// AddTipTotals credits one supporter and amount to a creator's running totals.
func (r *ProfileRepository) AddTipTotals(ctx context.Context, profileID string, amount float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET total_received = total_received + $2,
		     total_supporters = total_supporters + 1,
		     updated_at = NOW()
		 WHERE id = $1`,
		profileID, amount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update tip totals", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
	}
	return nil
}

var _ types.ProfileRepository = (*ProfileRepository)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListCreators returns the creator directory: finished creators with a
// username, ordered by supporter count.
func (r *ProfileRepository) ListCreators(ctx context.Context, q types.CreatorQuery) ([]*types.Profile, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	search := strings.TrimSpace(q.Search)
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles p
		 WHERE p.account_type = 'creator'
		   AND p.onboarding_status = 'completed'
		   AND p.username IS NOT NULL
		   AND ($1::text = ''
		        OR concat_ws(' ', p.first_name, p.last_name) ILIKE $2
		        OR p.username ILIKE $2
		        OR p.bio ILIKE $2)
		 ORDER BY p.total_supporters DESC, p.username
		 LIMIT $3`,
		search, "%"+likeEscaper.Replace(search)+"%", limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list creators", err)
	}
	defer rows.Close()

	out := []*types.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan profile", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate profiles", err)
	}
	return out, nil
}
