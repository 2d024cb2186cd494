package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// 后端返回的时间可能不带时区（按 UTC 处理）
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	createdAt, err := parseTime(aux.CreatedAt)
	if err != nil {
		return err
	}
	m.CreatedAt = createdAt
	return nil
}

func (s *ChatSession) UnmarshalJSON(data []byte) error {
	type alias ChatSession
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if s.CreatedAt, err = parseTime(aux.CreatedAt); err != nil {
		return err
	}
	if s.UpdatedAt, err = parseTime(aux.UpdatedAt); err != nil {
		return err
	}
	return nil
}
