package jobs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Arguments is the per-type job argument bag. Decoding is keyed by the job
// type, so callers go through DecodeArguments rather than unmarshalling the
// interface directly. Unknown fields supplied by clients survive a round
// trip through storage.
type Arguments interface {
	JobType() Type
	Validate() error
}

// MontageArgs parameterise an event montage job.
type MontageArgs struct {
	// Kind names the output flavour in filenames, e.g. "animals".
	Kind      string `json:"kind,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Mode      string `json:"mode,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	// Dawn and dusk offsets in minutes, applied to the twilight modes.
	DawnOffsetMin int `json:"dawn_offset_min,omitempty"`
	DuskOffsetMin int `json:"dusk_offset_min,omitempty"`

	IncludeLabels []string `json:"include_labels,omitempty"`
	ExcludeLabels []string `json:"exclude_labels,omitempty"`
	MinScore      float64  `json:"min_score,omitempty"`
	AllMotion     bool     `json:"all_motion,omitempty"`
	MinMotion     int      `json:"min_motion,omitempty"`

	Timelapse      float64 `json:"timelapse,omitempty"`
	TimelapseAudio bool    `json:"timelapse_audio,omitempty"`
	Encode         bool    `json:"encode,omitempty"`
	CopyAudio      bool    `json:"copy_audio,omitempty"`

	SourceMode string `json:"source_mode,omitempty"`
	ProbeVOD   bool   `json:"probe_vod,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Upload     bool   `json:"upload,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (a *MontageArgs) JobType() Type { return TypeMontage }

func (a *MontageArgs) Validate() error {
	if a.Timelapse < 0 {
		return fmt.Errorf("timelapse factor must not be negative")
	}
	if a.MinScore < 0 || a.MinScore > 1 {
		return fmt.Errorf("min_score must be within [0, 1]")
	}
	return validateDateRange(a.StartDate, a.EndDate)
}

func (a *MontageArgs) UnmarshalJSON(data []byte) error {
	type plain MontageArgs
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*a = MontageArgs(known)
	extra, err := extraFields(data, a)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

func (a MontageArgs) MarshalJSON() ([]byte, error) {
	type plain MontageArgs
	return marshalWithExtra(plain(a), a.Extra)
}

// TimelapseArgs parameterise a sampled frame timelapse job.
type TimelapseArgs struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Mode      string `json:"mode,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`

	DawnOffsetMin int `json:"dawn_offset_min,omitempty"`
	DuskOffsetMin int `json:"dusk_offset_min,omitempty"`

	// IntervalSeconds is the sampling cadence between kept frames.
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	FPS             int    `json:"fps,omitempty"`
	Scale           string `json:"scale,omitempty"`

	DryRun bool `json:"dry_run,omitempty"`
	Upload bool `json:"upload,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (a *TimelapseArgs) JobType() Type { return TypeTimelapse }

func (a *TimelapseArgs) Validate() error {
	if a.IntervalSeconds < 0 {
		return fmt.Errorf("interval_seconds must not be negative")
	}
	if a.FPS < 0 {
		return fmt.Errorf("fps must not be negative")
	}
	return validateDateRange(a.StartDate, a.EndDate)
}

func (a *TimelapseArgs) UnmarshalJSON(data []byte) error {
	type plain TimelapseArgs
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*a = TimelapseArgs(known)
	extra, err := extraFields(data, a)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

func (a TimelapseArgs) MarshalJSON() ([]byte, error) {
	type plain TimelapseArgs
	return marshalWithExtra(plain(a), a.Extra)
}

// MotionPlaylistArgs parameterise a motion review playlist job.
type MotionPlaylistArgs struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	// DefaultDurationSecs is used for review items that are still open.
	DefaultDurationSecs int `json:"default_duration_secs,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (a *MotionPlaylistArgs) JobType() Type { return TypeMotionPlaylist }

func (a *MotionPlaylistArgs) Validate() error {
	if a.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if a.DefaultDurationSecs < 0 {
		return fmt.Errorf("default_duration_secs must not be negative")
	}
	return validateDateRange(a.StartDate, a.EndDate)
}

func (a *MotionPlaylistArgs) UnmarshalJSON(data []byte) error {
	type plain MotionPlaylistArgs
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*a = MotionPlaylistArgs(known)
	extra, err := extraFields(data, a)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

func (a MotionPlaylistArgs) MarshalJSON() ([]byte, error) {
	type plain MotionPlaylistArgs
	return marshalWithExtra(plain(a), a.Extra)
}

// DecodeArguments builds the argument bag for a job type from raw JSON.
// A nil or empty payload yields the type's zero arguments.
func DecodeArguments(jobType Type, data []byte) (Arguments, error) {
	var args Arguments
	switch jobType {
	case TypeMontage:
		args = &MontageArgs{}
	case TypeTimelapse:
		args = &TimelapseArgs{}
	case TypeMotionPlaylist:
		args = &MotionPlaylistArgs{}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	if len(data) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(data, args); err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", jobType, err)
	}
	return args, nil
}

func validateDateRange(start, end string) error {
	if start == "" && end != "" {
		return fmt.Errorf("end_date requires start_date")
	}
	if start != "" && end != "" && end < start {
		return fmt.Errorf("end_date %s precedes start_date %s", end, start)
	}
	return nil
}

// extraFields returns the payload keys that do not map to a known struct
// field, preserving their raw JSON.
func extraFields(data []byte, v any) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for name := range jsonFieldNames(v) {
		delete(all, name)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, exists := merged[key]; !exists {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

func jsonFieldNames(v any) map[string]struct{} {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}
		names[name] = struct{}{}
	}
	return names
}
