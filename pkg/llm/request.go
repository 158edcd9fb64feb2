package llm

import (
	"strconv"

	"github.com/papercomputeco/promptline/pkg/record"
)

// Request record keys.
const (
	KeyInputText     = "input_text"
	KeySeed          = "seed"
	KeyNumPredict    = "n_predict"
	KeyTopK          = "top_k"
	KeyTopP          = "top_p"
	KeyTemperature   = "temp"
	KeyRepeatLastN   = "repeat_last_n"
	KeyRepeatPenalty = "repeat_penalty"
)

// DecodeOptions applies the pairs of rec on top of defaults.
// Any unknown key or unparsable value rejects the whole request; nothing is
// partially applied.
func DecodeOptions(rec *record.Record, defaults Options) (Options, error) {
	opts := defaults
	opts.InputText = ""

	var err error
	rec.Each(func(key, value string) {
		if err != nil {
			return
		}
		err = opts.set(key, value)
	})
	if err != nil {
		return defaults, err
	}

	if err := opts.Validate(); err != nil {
		return defaults, err
	}
	return opts, nil
}

func (o *Options) set(key, value string) error {
	switch key {
	case KeyInputText:
		o.InputText = value
	case KeySeed:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return NewValidationError(key, value, "not an integer")
		}
		o.Seed = n
	case KeyNumPredict:
		return parseCount(key, value, &o.NumPredict)
	case KeyTopK:
		return parseCount(key, value, &o.TopK)
	case KeyRepeatLastN:
		return parseCount(key, value, &o.RepeatLastN)
	case KeyTopP:
		return parseFloat(key, value, &o.TopP)
	case KeyTemperature:
		return parseFloat(key, value, &o.Temperature)
	case KeyRepeatPenalty:
		return parseFloat(key, value, &o.RepeatPenalty)
	default:
		return NewValidationError(key, value, "unknown argument")
	}
	return nil
}

func parseCount(key, value string, dst *int) error {
	n, err := strconv.ParseUint(value, 10, 31)
	if err != nil {
		return NewValidationError(key, value, "not an unsigned integer")
	}
	*dst = int(n)
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || !finite(f) {
		return NewValidationError(key, value, "not a finite number")
	}
	*dst = f
	return nil
}

// Record encodes the request-overridable fields of o as a request record.
func (o Options) Record() *record.Record {
	r := record.New()
	r.Set(KeyInputText, o.InputText)
	r.Set(KeySeed, strconv.FormatInt(o.Seed, 10))
	r.Set(KeyNumPredict, strconv.Itoa(o.NumPredict))
	r.Set(KeyTopK, strconv.Itoa(o.TopK))
	r.Set(KeyTopP, strconv.FormatFloat(o.TopP, 'g', -1, 64))
	r.Set(KeyTemperature, strconv.FormatFloat(o.Temperature, 'g', -1, 64))
	r.Set(KeyRepeatLastN, strconv.Itoa(o.RepeatLastN))
	r.Set(KeyRepeatPenalty, strconv.FormatFloat(o.RepeatPenalty, 'g', -1, 64))
	return r
}
