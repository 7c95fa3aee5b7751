package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// UserDTO is the transport shape of a user as seen by the credits API.
type UserDTO struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	IsUnlimited  bool       `json:"is_unlimited"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Role        enums.UserRole
	IsUnlimited bool
}

func (dto CreateUserDTO) ToModel() *models.User {
	id := dto.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	role := dto.Role
	if role == "" {
		role = enums.UserRoleCoach
	}
	now := time.Now().UTC()
	return &models.User{
		ID:          id,
		Email:       dto.Email,
		DisplayName: dto.DisplayName,
		Role:        role.String(),
		IsUnlimited: dto.IsUnlimited,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Role:         u.Role,
		IsUnlimited:  u.IsUnlimited,
		PremiumUntil: u.PremiumUntil,
		CreatedAt:    u.CreatedAt,
	}
}
