package imuser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrMalformedLogin is returned for login responses without a usable token.
var ErrMalformedLogin = errors.New("malformed login response")

const loginResponseSchema = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "object",
      "required": ["token"],
      "properties": {
        "token": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var loginSchema = jsonschema.MustCompileString("login-response.json", loginResponseSchema)

// LoginResult holds the fields a session keeps from a login response.
type LoginResult struct {
	Token string

	// UserID is 0 when the response carries no id
	UserID int64
}

// ParseLogin extracts the token and user id from a login response body.
//
// The user id is read from data.userInfo.id, falling back to data.userId.
func ParseLogin(body []byte) (LoginResult, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrMalformedLogin, err)
	}
	if err := loginSchema.Validate(doc); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrMalformedLogin, err)
	}

	result := LoginResult{
		Token: gjson.GetBytes(body, "data.token").String(),
	}

	id := gjson.GetBytes(body, "data.userInfo.id")
	if !id.Exists() {
		id = gjson.GetBytes(body, "data.userId")
	}
	if id.Exists() {
		result.UserID = id.Int()
	}

	return result, nil
}
