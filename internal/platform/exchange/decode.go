package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/crudebot/internal/domain"
)

var errNotArray = errors.New("response is not a JSON array")

func parseArray(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("response is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return gjson.Result{}, errNotArray
	}
	return res, nil
}

// decimalField reads a numeric field without going through float64 so quotes
// such as 70.15 stay exact.
func decimalField(v gjson.Result, name string) (decimal.Decimal, error) {
	f := v.Get(name)
	if !f.Exists() || f.Type == gjson.Null {
		return decimal.Zero, fmt.Errorf("field %q missing", name)
	}
	if f.Type != gjson.Number {
		return decimal.Zero, fmt.Errorf("field %q is not a number: %s", name, f.Raw)
	}
	return decimal.NewFromString(f.Raw)
}

func decodeSecurities(body []byte) ([]domain.Security, error) {
	arr, err := parseArray(body)
	if err != nil {
		return nil, err
	}
	var (
		out    []domain.Security
		decErr error
	)
	arr.ForEach(func(_, v gjson.Result) bool {
		sec := domain.Security{Ticker: v.Get("ticker").String()}
		if sec.Bid, decErr = decimalField(v, "bid"); decErr != nil {
			decErr = fmt.Errorf("security %s: %w", sec.Ticker, decErr)
			return false
		}
		if sec.Ask, decErr = decimalField(v, "ask"); decErr != nil {
			decErr = fmt.Errorf("security %s: %w", sec.Ticker, decErr)
			return false
		}
		out = append(out, sec)
		return true
	})
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

func decodeNews(body []byte) ([]domain.NewsItem, error) {
	arr, err := parseArray(body)
	if err != nil {
		return nil, err
	}
	var out []domain.NewsItem
	arr.ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id")
		if !id.Exists() {
			id = v.Get("news_id")
		}
		out = append(out, domain.NewsItem{
			ID:       id.Int(),
			Headline: v.Get("headline").String(),
			Read:     v.Get("read").Bool(),
		})
		return true
	})
	return out, nil
}

func decodeLeases(body []byte) ([]domain.Lease, error) {
	arr, err := parseArray(body)
	if err != nil {
		return nil, err
	}
	var out []domain.Lease
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, decodeLease(v))
		return true
	})
	return out, nil
}

func decodeLease(v gjson.Result) domain.Lease {
	return domain.Lease{ID: v.Get("id").Int(), Ticker: v.Get("ticker").String()}
}
