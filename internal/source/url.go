package source

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/listingwatch/internal/model"
)

// sortByDate は新着順の並び替え指定。
const sortByDate = "104"

// BuildSearchURL は検索パラメータから検索結果ページのURLを組み立てる。
// 形式: {base}/{location}?q=<query>&s=104[&pmin=][&pmax=][&d=1][&p=<page>]
func BuildSearchURL(baseURL string, params model.SearchParams, page int) (string, error) {
	if page < 1 {
		return "", errors.New("page must be >= 1")
	}
	if strings.TrimSpace(params.Query) == "" || strings.TrimSpace(params.Location) == "" {
		return "", errors.New("query and location are required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}

	// url.Values.Encode はキーをソートするため、順序を保つよう手で組み立てる
	parts := []string{
		"q=" + url.QueryEscape(strings.TrimSpace(params.Query)),
		"s=" + sortByDate,
	}
	if params.PriceMin != nil {
		parts = append(parts, "pmin="+strconv.Itoa(*params.PriceMin))
	}
	if params.PriceMax != nil {
		parts = append(parts, "pmax="+strconv.Itoa(*params.PriceMax))
	}
	if params.Delivery {
		parts = append(parts, "d=1")
	}
	if page > 1 {
		parts = append(parts, "p="+strconv.Itoa(page))
	}

	base.Path = base.Path + "/" + strings.TrimSpace(params.Location)
	base.RawPath = ""
	base.RawQuery = strings.Join(parts, "&")
	base.Fragment = ""
	return base.String(), nil
}
