package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// PageInfo describes the position of a page within a collection.
type PageInfo struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// page is the canonical collection envelope. The legacy API answers list
// endpoints with either a bare JSON array or {"data": [...], "meta": {...}};
// both shapes are adapted here, at the client boundary, so no call site ever
// sniffs response shapes.
type page struct {
	Items json.RawMessage
	Info  PageInfo
}

func normalizePage(body []byte) (page, error) {
	if !gjson.ValidBytes(body) {
		return page{}, fmt.Errorf("invalid JSON in collection response")
	}
	root := gjson.ParseBytes(body)

	if root.IsArray() {
		n := len(root.Array())
		return page{
			Items: json.RawMessage(root.Raw),
			Info:  PageInfo{Total: n, Page: 1, Limit: n},
		}, nil
	}

	data := root.Get("data")
	if !data.Exists() || !data.IsArray() {
		return page{}, fmt.Errorf("unrecognized collection envelope")
	}

	info := PageInfo{
		Total: int(root.Get("meta.total").Int()),
		Page:  int(root.Get("meta.page").Int()),
		Limit: int(root.Get("meta.limit").Int()),
	}
	if info.Total == 0 {
		info.Total = len(data.Array())
	}
	if info.Page == 0 {
		info.Page = 1
	}
	return page{Items: json.RawMessage(data.Raw), Info: info}, nil
}

func pageOf[T any](p page) ([]T, error) {
	out := []T{}
	if err := json.Unmarshal(p.Items, &out); err != nil {
		return nil, fmt.Errorf("decode collection items: %w", err)
	}
	return out, nil
}
