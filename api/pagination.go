// Copyright 2025 Quantstamp, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultPaginationCount = 100
	MaxPaginationCount     = 100
	PaginationOrderAsc     = "asc"
	PaginationOrderDesc    = "desc"
)

var ErrInvalidPaginationParameters = errors.New("invalid pagination parameters")

type PaginationParams struct {
	Count int
	Page  int
	Order string
}

// ParsePagination reads the count, page and order query values. Count and
// page are clamped into range.
func ParsePagination(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{
		Count: DefaultPaginationCount,
		Page:  1,
		Order: PaginationOrderAsc,
	}
	query := r.URL.Query()
	for name, dst := range map[string]*int{"count": &params.Count, "page": &params.Page} {
		v := query.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
		*dst = n
	}
	if v := query.Get("order"); v != "" {
		switch order := strings.ToLower(v); order {
		case PaginationOrderAsc, PaginationOrderDesc:
			params.Order = order
		default:
			return PaginationParams{}, ErrInvalidPaginationParameters
		}
	}
	params.Count = min(max(params.Count, 1), MaxPaginationCount)
	params.Page = max(params.Page, 1)
	return params, nil
}

func SetPaginationHeaders(w http.ResponseWriter, totalItems int, params PaginationParams) {
	totalItems = max(totalItems, 0)
	count := params.Count
	if count < 1 {
		count = DefaultPaginationCount
	}
	totalPages := (totalItems + count - 1) / count
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(totalItems))
	w.Header().Set("X-Pagination-Page-Total", strconv.Itoa(totalPages))
}

// Paginate returns the requested page of items. Descending order reverses
// the items before paging.
func Paginate[T any](items []T, params PaginationParams) []T {
	if params.Order == PaginationOrderDesc {
		items = slices.Clone(items)
		slices.Reverse(items)
	}
	start := (params.Page - 1) * params.Count
	if start >= len(items) {
		return []T{}
	}
	end := min(start+params.Count, len(items))
	return items[start:end]
}
