package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/gomq/types"
)

// DefaultEventName is the broadcast name the bridge listens on unless told otherwise.
const DefaultEventName = "gomq"

var (
	ErrMissingDetail = errors.New("gomq: broadcast has no detail")
	ErrMissingType   = errors.New("gomq: broadcast detail has no type")
	ErrBadDetail     = errors.New("gomq: unsupported broadcast detail")
)

// Detail is the body of a job broadcast. On the wire the delay is expressed
// in milliseconds:
//
//	{"type":"search.perform","payload":{"q":"ab"},"dedupeKey":"search","delay":300}
type Detail struct {
	Type         string        `json:"type"`
	Payload      any           `json:"payload,omitempty"`
	Requirements []string      `json:"requirements,omitempty"`
	DedupeKey    string        `json:"dedupeKey,omitempty"`
	Delay        time.Duration `json:"-"`
}

type wireDetail struct {
	Type         string   `json:"type"`
	Payload      any      `json:"payload,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	DedupeKey    string   `json:"dedupeKey,omitempty"`
	Delay        float64  `json:"delay,omitempty"`
}

func (d Detail) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDetail{
		Type:         d.Type,
		Payload:      d.Payload,
		Requirements: d.Requirements,
		DedupeKey:    d.DedupeKey,
		Delay:        float64(d.Delay) / float64(time.Millisecond),
	})
}

func (d *Detail) UnmarshalJSON(data []byte) error {
	var w wireDetail
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Detail{
		Type:         w.Type,
		Payload:      w.Payload,
		Requirements: w.Requirements,
		DedupeKey:    w.DedupeKey,
		Delay:        time.Duration(w.Delay * float64(time.Millisecond)),
	}
	return nil
}

// NewJob converts the broadcast into a queue submission.
func (d Detail) NewJob() types.NewJob {
	return types.NewJob{
		Type:         d.Type,
		Payload:      d.Payload,
		Requirements: d.Requirements,
		DedupeKey:    d.DedupeKey,
		Delay:        d.Delay,
	}
}

// parseDetail accepts the shapes a broadcaster may reasonably send: a Detail,
// a pointer to one, raw JSON, or a decoded JSON object.
func parseDetail(raw any) (Detail, error) {
	var d Detail
	switch v := raw.(type) {
	case nil:
		return d, ErrMissingDetail
	case Detail:
		d = v
	case *Detail:
		if v == nil {
			return d, ErrMissingDetail
		}
		d = *v
	case json.RawMessage:
		if err := json.Unmarshal(v, &d); err != nil {
			return d, fmt.Errorf("%w: %v", ErrBadDetail, err)
		}
	case []byte:
		if err := json.Unmarshal(v, &d); err != nil {
			return d, fmt.Errorf("%w: %v", ErrBadDetail, err)
		}
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return d, fmt.Errorf("%w: %v", ErrBadDetail, err)
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return d, fmt.Errorf("%w: %v", ErrBadDetail, err)
		}
	default:
		return d, fmt.Errorf("%w: %T", ErrBadDetail, raw)
	}

	if d.Type == "" {
		return d, ErrMissingType
	}
	return d, nil
}
