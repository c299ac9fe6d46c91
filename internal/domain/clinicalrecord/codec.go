// Package clinicalrecord encodes department-specific examination findings into
// a tagged JSON document and reads them back, including payloads written
// before the tag existed.
package clinicalrecord

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperror"
)

type envelope struct {
	Department Tag    `json:"department"`
	Version    int    `json:"version"`
	Fields     Fields `json:"fields"`
}

// Codec converts between Fields and stored payloads.
type Codec struct {
	logger zerolog.Logger
}

func NewCodec(logger zerolog.Logger) *Codec {
	return &Codec{logger: logger.With().Str("component", "clinicalrecord").Logger()}
}

// Encode validates fields against the schema for tag and returns the tagged
// payload. Null values are dropped and numbers are normalised to float64.
func (c *Codec) Encode(tag Tag, fields Fields) (Payload, error) {
	const op = "clinicalrecord.encode"
	if _, ok := ParseTag(string(tag)); !ok {
		return nil, apperror.Validation(op, "unknown exam type %q", tag)
	}

	schema := schemaFor(tag)
	out := make(Fields, len(fields))
	for key, value := range fields {
		if value == nil {
			continue
		}
		if key == "" {
			return nil, apperror.Validation(op, "exam field name is empty")
		}
		if tag == TagEye && key == refractionKey {
			ref, err := normaliseRefraction(op, value)
			if err != nil {
				return nil, err
			}
			if len(ref) > 0 {
				out[key] = ref
			}
			continue
		}
		if schema != nil && !schema[key] {
			return nil, apperror.Validation(op, "unknown %s exam field %q", tag, key)
		}
		v, err := normaliseScalar(op, key, value)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	raw, err := json.Marshal(envelope{Department: tag, Version: SchemaVersion, Fields: out})
	if err != nil {
		return nil, apperror.Validation(op, "exam findings cannot be encoded")
	}
	return raw, nil
}

func normaliseScalar(op, key string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, apperror.Validation(op, "exam field %q is not a valid number", key)
		}
		return f, nil
	}
	return nil, apperror.Validation(op, "exam field %q must be text or a number", key)
}

func normaliseRefraction(op string, value interface{}) (map[string]interface{}, error) {
	m, ok := asMap(value)
	if !ok {
		return nil, apperror.Validation(op, "refraction must be an object")
	}
	out := make(map[string]interface{}, len(m))
	for key, v := range m {
		if v == nil {
			continue
		}
		switch {
		case key == "right" || key == "left":
			side, ok := asMap(v)
			if !ok {
				return nil, apperror.Validation(op, "refraction.%s must be an object", key)
			}
			norm := make(map[string]interface{}, len(side))
			for sk, sv := range side {
				if sv == nil {
					continue
				}
				if !refractionSideFields[sk] {
					return nil, apperror.Validation(op, "unknown refraction field %q", key+"."+sk)
				}
				n, err := normaliseScalar(op, "refraction."+key+"."+sk, sv)
				if err != nil {
					return nil, err
				}
				norm[sk] = n
			}
			out[key] = norm
		case refractionSharedFields[key]:
			n, err := normaliseScalar(op, "refraction."+key, v)
			if err != nil {
				return nil, err
			}
			out[key] = n
		default:
			return nil, apperror.Validation(op, "unknown refraction field %q", key)
		}
	}
	return out, nil
}

// Decode reads a stored payload. It never fails: anything unreadable comes
// back as an empty generic record and is logged.
func (c *Codec) Decode(p Payload) Record {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		c.logger.Debug().Msg("empty exam payload")
		return emptyRecord()
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(trimmed, &doc); err != nil || doc == nil {
		c.logger.Warn().Err(err).Int("bytes", len(trimmed)).Msg("malformed exam payload")
		return emptyRecord()
	}

	rawTag, tagged := doc["department"].(string)
	rawFields, hasFields := doc["fields"]
	if tagged && hasFields {
		tag, ok := ParseTag(rawTag)
		if !ok {
			c.logger.Warn().Str("department", rawTag).Msg("unknown exam type in payload")
			return emptyRecord()
		}
		fields, ok := asMap(rawFields)
		if !ok && rawFields != nil {
			c.logger.Warn().Str("department", rawTag).Msg("exam payload fields are not an object")
			return emptyRecord()
		}
		version := SchemaVersion
		if v, ok := doc["version"].(float64); ok {
			version = int(v)
		}
		return Record{Tag: tag, Version: version, Fields: dropNulls(fields)}
	}

	fields := flattenLegacy(dropNulls(doc))
	return Record{Tag: InferTag(fields), Version: 0, Fields: fields, Legacy: true}
}

func dropNulls(m map[string]interface{}) Fields {
	out := make(Fields, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

var legacyEyeKeys = map[string]string{
	"visualAcuity":        "visual_acuity",
	"cornea":              "cornea",
	"lens":                "lens",
	"retina":              "retina",
	"intraocularPressure": "pressure",
}

// flattenLegacy rewrites the older nested eye shape
// ({"rightEye": {"visualAcuity": ...}, "leftEye": {...}}) into od_/os_ keys.
// Flat keys already present win over nested ones.
func flattenLegacy(f Fields) Fields {
	for nested, prefix := range map[string]string{"rightEye": "od_", "leftEye": "os_"} {
		side, ok := asMap(f[nested])
		if !ok {
			continue
		}
		for from, to := range legacyEyeKeys {
			key := prefix + to
			if v, ok := side[from]; ok && v != nil && !f.has(key) {
				f[key] = v
			}
		}
		delete(f, nested)
	}
	return f
}

// InferTag classifies an untagged exam. A visual-acuity finding means eye,
// otherwise an external-ear finding means ent, otherwise an affected area
// means skin. Anything else is generic.
func InferTag(f Fields) Tag {
	switch {
	case f.has("od_visual_acuity") || f.has("os_visual_acuity") || nestedAcuity(f):
		return TagEye
	case f.has("right_external_ear") || f.has("left_external_ear"):
		return TagENT
	case f.has("affected_area"):
		return TagSkin
	}
	return TagGeneric
}

func nestedAcuity(f Fields) bool {
	for _, key := range []string{"rightEye", "leftEye"} {
		if side, ok := asMap(f[key]); ok && Fields(side).has("visualAcuity") {
			return true
		}
	}
	return false
}
