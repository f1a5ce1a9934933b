package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/paymesh/internal/model"
)

// UserClient обращается к сервису пользователей.
type UserClient struct {
	client *Client
}

// NewUserClient создаёт клиент сервиса пользователей.
func NewUserClient(c *Client) *UserClient {
	return &UserClient{client: c}
}

type userPayload struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	DOB     string `json:"dob"`
	Address string `json:"address"`
}

// GetUser запрашивает пользователя по идентификатору.
func (u *UserClient) GetUser(ctx context.Context, id string) (*model.User, error) {
	var p userPayload
	if err := u.client.getJSON(ctx, "/users/"+escape(id), &p); err != nil {
		return nil, err
	}
	return p.toModel()
}

func (p userPayload) toModel() (*model.User, error) {
	user := &model.User{
		ID:      p.UserID,
		Name:    p.Name,
		Email:   p.Email,
		Address: p.Address,
	}
	if p.DOB != "" {
		dob, err := time.Parse(model.DateLayout, p.DOB)
		if err != nil {
			return nil, fmt.Errorf("%w: parse dob: %v", ErrUnavailable, err)
		}
		user.DateOfBirth = dob
	}
	return user, nil
}
