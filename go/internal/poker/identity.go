package poker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/planningpoker/go/internal/models"
)

// Identity is what a client keeps locally to resume its seat after a reload.
type Identity struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	ID   uuid.UUID   `json:"id"`
}

// Token encodes the identity as name|role|id.
func (i Identity) Token() string {
	return i.Name + "|" + string(i.Role) + "|" + i.ID.String()
}

// ParseToken decodes a name|role|id token. The name may contain "|", so the
// token is split from the right.
func ParseToken(token string) (Identity, error) {
	idSep := strings.LastIndex(token, "|")
	if idSep < 0 {
		return Identity{}, fmt.Errorf("%w: malformed identity token", ErrValidation)
	}
	roleSep := strings.LastIndex(token[:idSep], "|")
	if roleSep < 0 {
		return Identity{}, fmt.Errorf("%w: malformed identity token", ErrValidation)
	}

	name := token[:roleSep]
	role := models.Role(token[roleSep+1 : idSep])
	id, err := uuid.Parse(token[idSep+1:])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: identity token id: %v", ErrValidation, err)
	}
	if name == "" || !role.Valid() {
		return Identity{}, fmt.Errorf("%w: identity token name or role", ErrValidation)
	}

	return Identity{Name: name, Role: role, ID: id}, nil
}
