package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category 分类
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON 远程 API 的 id 可能是数字也可能是字符串
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.ID = ""
	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		return nil
	}

	var id string
	if err := json.Unmarshal(raw.ID, &id); err == nil {
		c.ID = id
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw.ID, &num); err != nil {
		return fmt.Errorf("无效的分类 id %s: %w", raw.ID, err)
	}
	c.ID = num.String()
	return nil
}

// CategoryFields 创建/更新时提交的字段
type CategoryFields struct {
	Name string `json:"name" form:"name"`
}

// Valid 名称去除空白后不能为空
func (f CategoryFields) Valid() bool {
	return strings.TrimSpace(f.Name) != ""
}

// CategoryPage 分页结果
type CategoryPage struct {
	Categories []Category `json:"categories"`
	TotalPages int        `json:"totalPages"`
}
