package clinicalrecord

import (
	"sort"
	"strconv"
)

// Tag names the examination variant a record holds.
type Tag string

const (
	TagEye     Tag = "eye"
	TagENT     Tag = "ent"
	TagSkin    Tag = "skin"
	TagGeneric Tag = "generic"
)

// SchemaVersion is written into every encoded payload.
const SchemaVersion = 1

// ParseTag accepts only the four known tags.
func ParseTag(s string) (Tag, bool) {
	switch t := Tag(s); t {
	case TagEye, TagENT, TagSkin, TagGeneric:
		return t, true
	}
	return "", false
}

// TagFor maps a doctor's department to the exam variant recorded for it.
// Departments without a dedicated form record generic findings.
func TagFor(department string) Tag {
	switch department {
	case "eye":
		return TagEye
	case "ent":
		return TagENT
	case "skin":
		return TagSkin
	}
	return TagGeneric
}

// Fields is a flat set of findings keyed by field name. Values are strings or
// float64 numbers; the eye variant may also carry a nested "refraction" map.
type Fields map[string]interface{}

// String renders the value stored at key, or "" when it is missing.
func (f Fields) String(key string) string {
	return scalarString(f[key])
}

func (f Fields) has(key string) bool {
	switch v := f[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	default:
		return true
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// Payload is the stored JSON document.
type Payload []byte

// Record is a decoded examination.
type Record struct {
	Tag     Tag    `json:"department"`
	Version int    `json:"version"`
	Fields  Fields `json:"fields"`
	// Legacy is set when the payload predates tagging and Tag was inferred.
	Legacy bool `json:"legacy,omitempty"`
}

func emptyRecord() Record {
	return Record{Tag: TagGeneric, Version: SchemaVersion, Fields: Fields{}}
}

const refractionKey = "refraction"

var eyeFields = fieldSet(
	"od_visual_acuity", "od_cornea", "od_lens", "od_retina", "od_pressure",
	"os_visual_acuity", "os_cornea", "os_lens", "os_retina", "os_pressure",
)

var entFields = fieldSet(
	"right_external_ear", "right_middle_ear", "right_inner_ear", "right_tympanic_membrane", "right_hearing_test",
	"left_external_ear", "left_middle_ear", "left_inner_ear", "left_tympanic_membrane", "left_hearing_test",
	"nose_rhinoscopy", "nose_nasal_endoscopy", "nose_septum",
	"throat_pharynx", "throat_laryngoscopy", "throat_tonsils",
)

var skinFields = fieldSet(
	"affected_area", "skin_condition", "color_changes", "texture",
	"size_dimensions", "pain_level", "itching", "duration",
)

var refractionSideFields = fieldSet(
	"autorefraction", "retinoscopy", "sphere", "cylinder", "axis",
	"nearRefraction", "cycloplegicRefraction", "finalRx",
)

var refractionSharedFields = fieldSet(
	"duochrome", "binocularBalance", "nearAddition", "cycloplegicAgent",
	"cycloplegicTime", "interpupillaryDistance", "prescriptionType", "remarks",
)

func fieldSet(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// schemaFor returns the allowed flat keys for tag; nil means any key.
func schemaFor(tag Tag) map[string]bool {
	switch tag {
	case TagEye:
		return eyeFields
	case TagENT:
		return entFields
	case TagSkin:
		return skinFields
	}
	return nil
}

// Schema lists the field names each tag accepts, sorted. Generic accepts any
// key and is reported with an empty list.
func Schema() map[Tag][]string {
	out := map[Tag][]string{TagGeneric: {}}
	for _, tag := range []Tag{TagEye, TagENT, TagSkin} {
		keys := make([]string, 0, len(schemaFor(tag))+1)
		for k := range schemaFor(tag) {
			keys = append(keys, k)
		}
		if tag == TagEye {
			keys = append(keys, refractionKey)
		}
		sort.Strings(keys)
		out[tag] = keys
	}
	return out
}

// -- Typed views --

type EyeSide struct {
	VisualAcuity string `json:"visualAcuity"`
	Cornea       string `json:"cornea"`
	Lens         string `json:"lens"`
	Retina       string `json:"retina"`
	Pressure     string `json:"intraocularPressure"`
}

type RefractionSide struct {
	Autorefraction        string `json:"autorefraction"`
	Retinoscopy           string `json:"retinoscopy"`
	Sphere                string `json:"sphere"`
	Cylinder              string `json:"cylinder"`
	Axis                  string `json:"axis"`
	NearRefraction        string `json:"nearRefraction"`
	CycloplegicRefraction string `json:"cycloplegicRefraction"`
	FinalRx               string `json:"finalRx"`
}

type Refraction struct {
	Right                  RefractionSide `json:"right"`
	Left                   RefractionSide `json:"left"`
	Duochrome              string         `json:"duochrome"`
	BinocularBalance       string         `json:"binocularBalance"`
	NearAddition           string         `json:"nearAddition"`
	CycloplegicAgent       string         `json:"cycloplegicAgent"`
	CycloplegicTime        string         `json:"cycloplegicTime"`
	InterpupillaryDistance string         `json:"interpupillaryDistance"`
	PrescriptionType       string         `json:"prescriptionType"`
	Remarks                string         `json:"remarks"`
}

// EyeExam is the eye view of a record. Refraction is nil when the test was
// not recorded.
type EyeExam struct {
	Right      EyeSide     `json:"rightEye"`
	Left       EyeSide     `json:"leftEye"`
	Refraction *Refraction `json:"refraction,omitempty"`
}

type EarFindings struct {
	ExternalEar      string `json:"externalEar"`
	MiddleEar        string `json:"middleEar"`
	InnerEar         string `json:"innerEar"`
	TympanicMembrane string `json:"tympanicMembrane"`
	HearingTest      string `json:"hearingTest"`
}

type ENTExam struct {
	Right          EarFindings `json:"rightEar"`
	Left           EarFindings `json:"leftEar"`
	Rhinoscopy     string      `json:"rhinoscopy"`
	NasalEndoscopy string      `json:"nasalEndoscopy"`
	Septum         string      `json:"septum"`
	Pharynx        string      `json:"pharynx"`
	Laryngoscopy   string      `json:"laryngoscopy"`
	Tonsils        string      `json:"tonsils"`
}

type SkinExam struct {
	AffectedArea   string `json:"affectedArea"`
	SkinCondition  string `json:"skinCondition"`
	ColorChanges   string `json:"colorChanges"`
	Texture        string `json:"texture"`
	SizeDimensions string `json:"sizeDimensions"`
	PainLevel      string `json:"painLevel"`
	Itching        string `json:"itching"`
	Duration       string `json:"duration"`
}

// Eye returns the eye view; ok is false for other variants.
func (r Record) Eye() (EyeExam, bool) {
	if r.Tag != TagEye {
		return EyeExam{}, false
	}
	f := r.Fields
	exam := EyeExam{Right: eyeSide(f, "od_"), Left: eyeSide(f, "os_")}
	if raw, ok := asMap(f[refractionKey]); ok {
		exam.Refraction = refractionView(raw)
	}
	return exam, true
}

func eyeSide(f Fields, prefix string) EyeSide {
	return EyeSide{
		VisualAcuity: f.String(prefix + "visual_acuity"),
		Cornea:       f.String(prefix + "cornea"),
		Lens:         f.String(prefix + "lens"),
		Retina:       f.String(prefix + "retina"),
		Pressure:     f.String(prefix + "pressure"),
	}
}

func refractionView(m map[string]interface{}) *Refraction {
	f := Fields(m)
	side := func(key string) RefractionSide {
		raw, _ := asMap(f[key])
		s := Fields(raw)
		return RefractionSide{
			Autorefraction:        s.String("autorefraction"),
			Retinoscopy:           s.String("retinoscopy"),
			Sphere:                s.String("sphere"),
			Cylinder:              s.String("cylinder"),
			Axis:                  s.String("axis"),
			NearRefraction:        s.String("nearRefraction"),
			CycloplegicRefraction: s.String("cycloplegicRefraction"),
			FinalRx:               s.String("finalRx"),
		}
	}
	return &Refraction{
		Right:                  side("right"),
		Left:                   side("left"),
		Duochrome:              f.String("duochrome"),
		BinocularBalance:       f.String("binocularBalance"),
		NearAddition:           f.String("nearAddition"),
		CycloplegicAgent:       f.String("cycloplegicAgent"),
		CycloplegicTime:        f.String("cycloplegicTime"),
		InterpupillaryDistance: f.String("interpupillaryDistance"),
		PrescriptionType:       f.String("prescriptionType"),
		Remarks:                f.String("remarks"),
	}
}

// ENT returns the ear/nose/throat view; ok is false for other variants.
func (r Record) ENT() (ENTExam, bool) {
	if r.Tag != TagENT {
		return ENTExam{}, false
	}
	f := r.Fields
	ear := func(prefix string) EarFindings {
		return EarFindings{
			ExternalEar:      f.String(prefix + "external_ear"),
			MiddleEar:        f.String(prefix + "middle_ear"),
			InnerEar:         f.String(prefix + "inner_ear"),
			TympanicMembrane: f.String(prefix + "tympanic_membrane"),
			HearingTest:      f.String(prefix + "hearing_test"),
		}
	}
	return ENTExam{
		Right:          ear("right_"),
		Left:           ear("left_"),
		Rhinoscopy:     f.String("nose_rhinoscopy"),
		NasalEndoscopy: f.String("nose_nasal_endoscopy"),
		Septum:         f.String("nose_septum"),
		Pharynx:        f.String("throat_pharynx"),
		Laryngoscopy:   f.String("throat_laryngoscopy"),
		Tonsils:        f.String("throat_tonsils"),
	}, true
}

// Skin returns the dermatology view; ok is false for other variants.
func (r Record) Skin() (SkinExam, bool) {
	if r.Tag != TagSkin {
		return SkinExam{}, false
	}
	f := r.Fields
	return SkinExam{
		AffectedArea:   f.String("affected_area"),
		SkinCondition:  f.String("skin_condition"),
		ColorChanges:   f.String("color_changes"),
		Texture:        f.String("texture"),
		SizeDimensions: f.String("size_dimensions"),
		PainLevel:      f.String("pain_level"),
		Itching:        f.String("itching"),
		Duration:       f.String("duration"),
	}, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Fields:
		return m, true
	}
	return nil, false
}
