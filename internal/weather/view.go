package weather

import (
	"fmt"

	"github.com/eb2tech/aura/internal/display"
)

// Forecast titles.
const (
	SevenDayTitle = "SEVEN DAY FORECAST"
	HourlyTitle   = "HOURLY FORECAST"
)

// Options select how a sample is presented.
type Options struct {
	Fahrenheit bool
	SevenDay   bool
	Use24Hour  bool
}

// Row is one forecast line. For the seven-day view Temp is the high and
// Detail the low; for the hourly view Detail is the precipitation chance.
type Row struct {
	Label  string
	Temp   string
	Detail string
	Icon   string
}

// View is everything a poll writes to the screen.
type View struct {
	Current      string
	FeelsLike    string
	CurrentImage string
	Title        string
	Rows         [display.ForecastRows]Row
}

// Converter turns a Celsius reading into display units.
type Converter func(celsius float64) float64

// ConverterFor returns the single converter used for every temperature in a view.
func ConverterFor(fahrenheit bool) Converter {
	if fahrenheit {
		return func(c float64) float64 { return c*9/5 + 32 }
	}
	return func(c float64) float64 { return c }
}

func unitSuffix(fahrenheit bool) string {
	if fahrenheit {
		return "°F"
	}
	return "°C"
}

// BuildView computes the whole screen from a sample. It touches nothing:
// any missing element fails the build before anything is drawn.
func BuildView(s *Sample, opts Options) (View, error) {
	conv := ConverterFor(opts.Fahrenheit)
	suffix := unitSuffix(opts.Fahrenheit)
	temp := func(c float64) string { return fmt.Sprintf("%.0f%s", conv(c), suffix) }

	v := View{
		Current:      temp(s.Current.Temperature),
		FeelsLike:    temp(s.Current.ApparentTemperature),
		CurrentImage: Image(s.Current.WeatherCode, s.Current.IsDay),
	}

	var err error
	if opts.SevenDay {
		v.Title = SevenDayTitle
		err = buildDaily(&v, s, temp)
	} else {
		v.Title = HourlyTitle
		err = buildHourly(&v, s, temp, opts.Use24Hour)
	}
	if err != nil {
		return View{}, err
	}
	return v, nil
}

func requireLen(name string, n int) error {
	if n < display.ForecastRows {
		return fmt.Errorf("%w: %s has %d entries, need %d", ErrMalformedPayload, name, n, display.ForecastRows)
	}
	return nil
}

func buildDaily(v *View, s *Sample, temp func(float64) string) error {
	d := s.Daily
	for name, n := range map[string]int{
		"daily.time":               len(d.Time),
		"daily.temperature_2m_min": len(d.Min),
		"daily.temperature_2m_max": len(d.Max),
		"daily.weather_code":       len(d.WeatherCode),
	} {
		if err := requireLen(name, n); err != nil {
			return err
		}
	}

	for i := range v.Rows {
		y, m, day, err := parseDate(d.Time[i])
		if err != nil {
			return err
		}
		label := Weekdays[DayOfWeek(y, m, day)]
		isDay := true
		if i == 0 {
			label = "Today"
			isDay = s.Current.IsDay
		}
		v.Rows[i] = Row{
			Label:  label,
			Temp:   temp(d.Max[i]),
			Detail: temp(d.Min[i]),
			Icon:   Icon(d.WeatherCode[i], isDay),
		}
	}
	return nil
}

func buildHourly(v *View, s *Sample, temp func(float64) string, use24 bool) error {
	h := s.Hourly
	for name, n := range map[string]int{
		"hourly.time":                      len(h.Time),
		"hourly.temperature_2m":            len(h.Temperature),
		"hourly.precipitation_probability": len(h.PrecipitationProbability),
		"hourly.is_day":                    len(h.IsDay),
		"hourly.weather_code":              len(h.WeatherCode),
	} {
		if err := requireLen(name, n); err != nil {
			return err
		}
	}

	for i := range v.Rows {
		hour, err := parseHour(h.Time[i])
		if err != nil {
			return err
		}
		label := HourLabel(hour, use24)
		if i == 0 {
			label = "Now"
		}
		v.Rows[i] = Row{
			Label:  label,
			Temp:   temp(h.Temperature[i]),
			Detail: fmt.Sprintf("%.0f%%", h.PrecipitationProbability[i]),
			Icon:   Icon(h.WeatherCode[i], h.IsDay[i] != 0),
		}
	}
	return nil
}

// Apply writes a built view to the renderer.
func (v View) Apply(r display.Renderer) {
	r.SetLabel(display.CurrentTemperature, v.Current)
	r.SetLabel(display.FeelsTemperature, v.FeelsLike)
	r.SetImage(display.CurrentConditions, v.CurrentImage)
	r.SetLabel(display.ForecastType, v.Title)
	for i, row := range v.Rows {
		r.SetLabel(display.ForecastLabel(i), row.Label)
		r.SetLabel(display.ForecastTemp(i), row.Temp)
		r.SetLabel(display.ForecastDetail(i), row.Detail)
		r.SetImage(display.ForecastIcon(i), row.Icon)
	}
}
