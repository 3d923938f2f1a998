package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/rescuelabs/protocold/pkg/models"
)

// UserStore provides read access to users and agencies for tier and
// tenant-scope resolution.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new user store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{db: store.DB}
}

// GetUser retrieves a user by ID. Returns ErrNotFound if missing.
func (s *UserStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var dbUser User
	err := s.db.WithContext(ctx).First(&dbUser, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:        dbUser.ID,
		Email:     dbUser.Email,
		Tier:      dbUser.Tier,
		AgencyID:  dbUser.AgencyID.Int64,
		Timezone:  dbUser.Timezone.String,
		CreatedAt: dbUser.CreatedAt,
	}, nil
}

// GetAgency retrieves an agency by ID. Returns ErrNotFound if missing.
func (s *UserStore) GetAgency(ctx context.Context, id int64) (*models.Agency, error) {
	var dbAgency Agency
	err := s.db.WithContext(ctx).First(&dbAgency, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.Agency{
		ID:        dbAgency.ID,
		Name:      dbAgency.Name,
		State:     dbAgency.State.String,
		Timezone:  dbAgency.Timezone.String,
		CreatedAt: dbAgency.CreatedAt,
	}, nil
}

// CreateUser inserts a user. Intended for provisioning and tests.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	dbUser := &User{
		Email:    user.Email,
		Tier:     user.Tier,
		AgencyID: sqlNullInt64(user.AgencyID),
		Timezone: sqlNullString(user.Timezone),
	}
	if err := s.db.WithContext(ctx).Create(dbUser).Error; err != nil {
		return 0, err
	}
	user.ID = dbUser.ID
	return dbUser.ID, nil
}

// CreateAgency inserts an agency. Intended for provisioning and tests.
func (s *UserStore) CreateAgency(ctx context.Context, agency *models.Agency) (int64, error) {
	dbAgency := &Agency{
		Name:     agency.Name,
		State:    sqlNullString(agency.State),
		Timezone: sqlNullString(agency.Timezone),
	}
	if err := s.db.WithContext(ctx).Create(dbAgency).Error; err != nil {
		return 0, err
	}
	agency.ID = dbAgency.ID
	return dbAgency.ID, nil
}
