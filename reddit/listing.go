package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
)

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// UnmarshalJSON also accepts the bare objects of user lists, which have no
// kind/data envelope.
func (t *thing) UnmarshalJSON(b []byte) error {
	var env struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	t.Kind, t.Data = env.Kind, env.Data
	if t.Data == nil {
		t.Data = append(json.RawMessage(nil), b...)
	}
	return nil
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

// timestamp accepts created_utc as either an integer or a float.
type timestamp int64

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = timestamp(f)
	return nil
}

// edited is false for unedited items and the edit time otherwise.
type edited int64

func (e *edited) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "false", "true", "null":
		*e = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*e = edited(f)
	return nil
}

// replies is "" for leaf comments and a listing otherwise.
type replies struct {
	listing *listing
}

func (r *replies) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	r.listing = &listing{}
	return json.Unmarshal(b, r.listing)
}

// paginate walks a listing endpoint with the "after" cursor, decoding each
// child of kind with decode. It stops requesting pages as soon as the
// consumer stops.
func paginate[R any](ctx context.Context, c *Client, path string, query url.Values, kind string, decode func(thing) (R, error)) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		after := ""
		for {
			q := url.Values{}
			for k, v := range query {
				q[k] = v
			}
			q.Set("limit", strconv.Itoa(PageSize))
			if after != "" {
				q.Set("after", after)
			}

			var page listing
			if err := c.get(ctx, path, q, &page); err != nil {
				yield(zero, err)
				return
			}
			for _, child := range page.Data.Children {
				if kind != "" && child.Kind != kind {
					continue
				}
				r, err := decode(child)
				if err != nil {
					yield(zero, err)
					return
				}
				if !yield(r, nil) {
					return
				}
			}

			after = page.Data.After
			if after == "" || len(page.Data.Children) == 0 {
				return
			}
		}
	}
}
