package models

import "strconv"

// Flatten converts a nested payload into the flat on-disk row shape.
// Missing nested groups default every field in the group: numerics to
// "0", booleans to "false", strings to "". The payload's timestamp is
// carried through as-is; ingest assigns it before flattening.
func (p *Payload) Flatten() Row {
	r := Row{
		Timestamp:    p.Timestamp,
		DeviceID:     p.DeviceID,
		SystemStatus: p.SystemStatus,
		LapNumber:    strconv.Itoa(p.LapNumber),

		AFR:         "0",
		RPM:         "0",
		Temperature: "0",
		TPS:         "0",
		MAPValue:    "0",
		Incline:     "0",
		Stroke:      "0",

		Latitude:   "0",
		Longitude:  "0",
		Speed:      "0",
		Satellites: "0",

		AIClassification:   "0",
		ClassificationText: "",

		CoolingActive: "false",
		FanOn:         "false",
		CurrentTemp:   "0",

		FreeHeap: "0",
		Uptime:   "0",
		WiFiRSSI: "0",
	}

	if s := p.Sensors; s != nil {
		r.AFR = formatFloat(s.AFR)
		r.RPM = formatFloat(s.RPM)
		r.Temperature = formatFloat(s.Temperature)
		r.TPS = formatFloat(s.TPS)
		r.MAPValue = formatFloat(s.MAPValue)
		r.Incline = formatFloat(s.Incline)
		r.Stroke = formatFloat(s.Stroke)
	}
	if g := p.GPS; g != nil {
		r.Latitude = formatFloat(g.Latitude)
		r.Longitude = formatFloat(g.Longitude)
		r.Speed = formatFloat(g.Speed)
		r.Satellites = strconv.Itoa(g.Satellites)
	}
	if a := p.AIClassification; a != nil {
		r.AIClassification = formatFloat(a.Classification)
		r.ClassificationText = a.ClassificationText
	}
	if c := p.Cooling; c != nil {
		r.CoolingActive = strconv.FormatBool(c.SystemActive)
		r.FanOn = strconv.FormatBool(c.FanOn)
		r.CurrentTemp = formatFloat(c.CurrentTemp)
	}
	if h := p.SystemHealth; h != nil {
		r.FreeHeap = strconv.FormatInt(h.FreeHeap, 10)
		r.Uptime = strconv.FormatInt(h.Uptime, 10)
		r.WiFiRSSI = strconv.Itoa(h.WiFiRSSI)
	}

	return r
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
