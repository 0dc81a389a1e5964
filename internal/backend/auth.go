package backend

import (
	"context"
	"net/http"

	"github.com/medinor/dashboard/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a backend token. It does not use the
// client's Credentials.
func (c *Client) Login(ctx context.Context, username, password string) (model.LoginResult, error) {
	var res model.LoginResult
	err := c.do(ctx, call{
		op:        "auth.login",
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      loginRequest{Username: username, Password: password},
		anonymous: true,
	}, &res)
	if err != nil {
		return model.LoginResult{}, err
	}
	if res.Token == "" {
		return model.LoginResult{}, model.NewBackendRejectedError(http.StatusOK, "The login response did not include a token")
	}
	return res, nil
}
