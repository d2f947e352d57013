package sqlengine

import (
	"bytes"
	"encoding/json"
	"time"
)

// EncodeRows serializes rows as a compact JSON array of objects whose keys keep the
// column order of the result set, e.g. [{"id":1,"name":"Ann"}].
func EncodeRows(columns []string, rows [][]any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, column := range columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(&buf, column); err != nil {
				return "", err
			}
			buf.WriteByte(':')
			var value any
			if j < len(row) {
				value = normalizeValue(row[j])
			}
			if err := writeJSON(&buf, value); err != nil {
				return "", err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

func writeJSON(buf *bytes.Buffer, value any) error {
	var tmp bytes.Buffer
	encoder := json.NewEncoder(&tmp)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}
