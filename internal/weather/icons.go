package weather

// conditionNames maps a WMO weather code to its day and night asset names.
// Codes not listed fall back to mostly cloudy.
var conditionNames = map[int][2]string{
	0:  {"sunny", "clear_night"},
	1:  {"mostly_sunny", "mostly_clear_night"},
	2:  {"partly_cloudy", "partly_cloudy_night"},
	3:  {"cloudy", "cloudy"},
	45: {"haze_fog", "haze_fog"},
	48: {"haze_fog", "haze_fog"},
	51: {"drizzle", "drizzle"},
	53: {"drizzle", "drizzle"},
	55: {"drizzle", "drizzle"},
	56: {"sleet_hail", "sleet_hail"},
	57: {"sleet_hail", "sleet_hail"},
	61: {"scat_shwrs_day", "scat_shwrs_night"},
	63: {"showers_rain", "showers_rain"},
	65: {"heavy_rain", "heavy_rain"},
	66: {"wintry_mix", "wintry_mix"},
	67: {"wintry_mix", "wintry_mix"},
	71: {"snow_showers_snow", "snow_showers_snow"},
	73: {"snow_showers_snow", "snow_showers_snow"},
	75: {"snow_showers_snow", "snow_showers_snow"},
	85: {"snow_showers_snow", "snow_showers_snow"},
	77: {"flurries", "flurries"},
	80: {"scat_shwrs_day", "scat_shwrs_night"},
	81: {"scat_shwrs_day", "scat_shwrs_night"},
	82: {"heavy_rain", "heavy_rain"},
	86: {"heavy_snow", "heavy_snow"},
	95: {"iso_scat_ts_day", "iso_scat_ts_night"},
	96: {"strong_tstorms", "strong_tstorms"},
	99: {"strong_tstorms", "strong_tstorms"},
}

var fallbackCondition = [2]string{"mostly_cloudy_day", "mostly_cloudy_night"}

func conditionName(code int, isDay bool) string {
	names, ok := conditionNames[code]
	if !ok {
		names = fallbackCondition
	}
	if isDay {
		return names[0]
	}
	return names[1]
}

// Image is the large current-conditions picture for code.
func Image(code int, isDay bool) string {
	return "image_" + conditionName(code, isDay)
}

// Icon is the small forecast-row picture for code.
func Icon(code int, isDay bool) string {
	return "icon_" + conditionName(code, isDay)
}
