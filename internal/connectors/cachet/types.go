package cachet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// flexInt decodes Cachet numeric fields, which older releases serialize as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parse cachet integer %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (f flexInt) String() string {
	return strconv.Itoa(int(f))
}

const cachetTimeLayout = "2006-01-02 15:04:05"

// cachetTime accepts both "2006-01-02 15:04:05" (UTC) and RFC 3339 timestamps.
type cachetTime struct {
	time.Time
}

func (t *cachetTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.ParseInLocation(cachetTimeLayout, s, time.UTC); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse cachet time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

type pagination struct {
	CurrentPage flexInt `json:"current_page"`
	TotalPages  flexInt `json:"total_pages"`
}

type meta struct {
	Pagination *pagination `json:"pagination"`
}

type incidentsResponse struct {
	Meta meta              `json:"meta"`
	Data []incidentPayload `json:"data"`
}

type incidentPayload struct {
	ID              flexInt    `json:"id"`
	ComponentID     flexInt    `json:"component_id"`
	ComponentStatus flexInt    `json:"component_status"`
	Name            string     `json:"name"`
	Status          flexInt    `json:"status"`
	HumanStatus     string     `json:"human_status"`
	Message         string     `json:"message"`
	Permalink       string     `json:"permalink"`
	OccurredAt      cachetTime `json:"occurred_at"`
	CreatedAt       cachetTime `json:"created_at"`
	UpdatedAt       cachetTime `json:"updated_at"`
}

type componentsResponse struct {
	Meta meta               `json:"meta"`
	Data []componentPayload `json:"data"`
}

type componentPayload struct {
	ID        flexInt    `json:"id"`
	Name      string     `json:"name"`
	Status    flexInt    `json:"status"`
	Order     flexInt    `json:"order"`
	GroupID   flexInt    `json:"group_id"`
	Enabled   *bool      `json:"enabled"`
	UpdatedAt cachetTime `json:"updated_at"`
}

type groupsResponse struct {
	Data []groupPayload `json:"data"`
}

type groupPayload struct {
	ID   flexInt `json:"id"`
	Name string  `json:"name"`
}

type updatesResponse struct {
	Data []updatePayload `json:"data"`
}

type updatePayload struct {
	ID        flexInt    `json:"id"`
	Status    flexInt    `json:"status"`
	Message   string     `json:"message"`
	CreatedAt cachetTime `json:"created_at"`
}
