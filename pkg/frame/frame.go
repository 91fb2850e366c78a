// Package frame converts notification payloads of the resistance characteristic
// into sensor samples. A payload is UTF-8 JSON text such as
//
//	{"left": 1320, "middle": 1488, "right": 1710}
//
// with no length prefix or other framing.
package frame

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/pkg/errors"
)

var requiredFields = []string{"left", "middle", "right"}

// Decode parses one payload. Every failure is a *models.DecodeError.
func Decode(payload []byte) (models.SensorSample, error) {
	if !utf8.Valid(payload) {
		return models.SensorSample{}, decodeError(payload, models.ErrInvalidUTF8)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return models.SensorSample{}, decodeError(payload, errors.Wrap(models.ErrMalformedJSON, err.Error()))
	}
	if fields == nil {
		return models.SensorSample{}, decodeError(payload, models.ErrMalformedJSON)
	}
	values := make([]int, len(requiredFields))
	for i, name := range requiredFields {
		raw, ok := fields[name]
		if !ok {
			return models.SensorSample{}, decodeError(payload, errors.Wrap(models.ErrMissingField, name))
		}
		v, err := integer(raw)
		if err != nil {
			return models.SensorSample{}, decodeError(payload, errors.Wrap(err, name))
		}
		values[i] = v
	}
	return models.SensorSample{Left: values[0], Middle: values[1], Right: values[2]}, nil
}

// Encode renders a sample in the wire format accepted by Decode
func Encode(s models.SensorSample) []byte {
	b, _ := json.Marshal(s)
	return b
}

func integer(raw json.RawMessage) (int, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, models.ErrInvalidField
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, models.ErrInvalidField
	}
	return v, nil
}

func decodeError(payload []byte, err error) error {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	return &models.DecodeError{Payload: copied, Err: err}
}
