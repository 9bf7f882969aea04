// Package forecast retrieves the day's forecast from the weatherapi.com
// forecast endpoint.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"epdweather/internal/model"
)

// ErrDecode means the response body was not a forecast document.
var ErrDecode = errors.New("forecast: malformed response")

// response mirrors the parts of forecast.json that are used. Pointers tell a
// missing field apart from a zero value.
type response struct {
	Location *struct {
		Name string `json:"name"`
	} `json:"location"`
	Forecast *struct {
		ForecastDay []struct {
			Day *struct {
				MinTempC  *float64 `json:"mintemp_c"`
				MaxTempC  *float64 `json:"maxtemp_c"`
				Condition *struct {
					Code *float64 `json:"code"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Decode reads forecast.forecastday[0].day from r. Temperatures are rounded
// as int(v+0.5), which truncates toward zero for negative values. day is
// passed through unchanged.
func Decode(r io.Reader, day bool) (model.Forecast, error) {
	var resp response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return model.Forecast{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if resp.Forecast == nil || len(resp.Forecast.ForecastDay) == 0 {
		return model.Forecast{}, fmt.Errorf("%w: no forecastday", ErrDecode)
	}
	d := resp.Forecast.ForecastDay[0].Day
	switch {
	case d == nil:
		return model.Forecast{}, fmt.Errorf("%w: no day", ErrDecode)
	case d.MinTempC == nil || d.MaxTempC == nil:
		return model.Forecast{}, fmt.Errorf("%w: missing temperature", ErrDecode)
	case d.Condition == nil || d.Condition.Code == nil:
		return model.Forecast{}, fmt.Errorf("%w: missing condition code", ErrDecode)
	}

	f := model.Forecast{
		Day:     day,
		Code:    int(*d.Condition.Code),
		TempMin: int(*d.MinTempC + 0.5),
		TempMax: int(*d.MaxTempC + 0.5),
	}
	if resp.Location != nil {
		f.Location = resp.Location.Name
	}
	return f, nil
}
