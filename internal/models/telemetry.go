package models

// TimestampLayout is the ISO-8601 format assigned to every record at
// ingest. Timestamps are always rendered in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Payload is the nested telemetry shape a device submits. Every field
// is optional; missing groups default to zero values when flattened.
type Payload struct {
	Timestamp        string            `json:"timestamp,omitempty"`
	DeviceID         string            `json:"device_id,omitempty"`
	SystemStatus     string            `json:"system_status,omitempty"`
	LapNumber        int               `json:"lap_number,omitempty"`
	Sensors          *Sensors          `json:"sensors,omitempty"`
	GPS              *GPS              `json:"gps,omitempty"`
	AIClassification *AIClassification `json:"ai_classification,omitempty"`
	Cooling          *Cooling          `json:"cooling,omitempty"`
	SystemHealth     *SystemHealth     `json:"system_health,omitempty"`
}

// Sensors carries the engine sensor block.
type Sensors struct {
	AFR         float64 `json:"afr"`
	RPM         float64 `json:"rpm"`
	Temperature float64 `json:"temperature"`
	TPS         float64 `json:"tps"`
	MAPValue    float64 `json:"map_value"`
	Incline     float64 `json:"incline"`
	Stroke      float64 `json:"stroke"`
}

// GPS carries the position fix block.
type GPS struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Satellites int     `json:"satellites"`
}

// AIClassification carries the on-device classifier output.
type AIClassification struct {
	Classification     float64 `json:"classification"`
	ClassificationText string  `json:"classification_text"`
}

// Cooling carries the cooling system state.
type Cooling struct {
	SystemActive bool    `json:"system_active"`
	FanOn        bool    `json:"fan_on"`
	CurrentTemp  float64 `json:"current_temp"`
}

// SystemHealth carries device health counters.
type SystemHealth struct {
	FreeHeap int64 `json:"free_heap"` // bytes
	Uptime   int64 `json:"uptime"`    // milliseconds
	WiFiRSSI int   `json:"wifi_rssi"` // dBm
}

// Row is one flat telemetry record as stored on disk. All values are
// string-typed, mirroring the CSV encoding; numeric parsing happens at
// aggregation time and is lenient (unparseable values read as 0).
type Row struct {
	Timestamp          string `json:"timestamp"`
	DeviceID           string `json:"device_id"`
	SystemStatus       string `json:"system_status"`
	LapNumber          string `json:"lap_number"`
	AFR                string `json:"afr"`
	RPM                string `json:"rpm"`
	Temperature        string `json:"temperature"`
	TPS                string `json:"tps"`
	MAPValue           string `json:"map_value"`
	Incline            string `json:"incline"`
	Stroke             string `json:"stroke"`
	Latitude           string `json:"latitude"`
	Longitude          string `json:"longitude"`
	Speed              string `json:"speed"`
	Satellites         string `json:"satellites"`
	AIClassification   string `json:"ai_classification"`
	ClassificationText string `json:"classification_text"`
	CoolingActive      string `json:"cooling_active"`
	FanOn              string `json:"fan_on"`
	CurrentTemp        string `json:"current_temp"`
	FreeHeap           string `json:"free_heap"`
	Uptime             string `json:"uptime"`
	WiFiRSSI           string `json:"wifi_rssi"`
}

// FieldStats holds the aggregate values for one numeric field.
type FieldStats struct {
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Latest float64 `json:"latest"`
}

// StatsSummary is the aggregate view over the whole record set. The
// zero value marshals to {} so an empty store yields an empty object.
type StatsSummary struct {
	RPM          *FieldStats `json:"rpm,omitempty"`
	Temperature  *FieldStats `json:"temperature,omitempty"`
	AFR          *FieldStats `json:"afr,omitempty"`
	TPS          *FieldStats `json:"tps,omitempty"`
	MAPValue     *FieldStats `json:"map_value,omitempty"`
	TotalRecords int         `json:"totalRecords,omitempty"`
	LastUpdate   string      `json:"lastUpdate,omitempty"`
}
