package authclient

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UserProfile is the user record returned by the provider. ID is always
// present; everything else the provider sends is kept in Fields.
type UserProfile struct {
	ID     string
	Fields map[string]any
}

func newUserProfile(payload map[string]any) *UserProfile {
	return &UserProfile{ID: formatID(payload["id"]), Fields: payload}
}

// String returns the named field as a string, or "" if absent.
func (p *UserProfile) String(name string) string {
	switch v := p.Fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (p *UserProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields)
}

func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Fields = fields
	p.ID = formatID(fields["id"])
	return nil
}

// formatID renders a numeric or string id. JSON numbers arrive as float64.
func formatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
